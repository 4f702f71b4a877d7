package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/auth"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/config"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/database"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
)

// Seeds an admin and a demo user for local development.
func main() {
	fmt.Println("Starting database seeder...")

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	pg := db.GetPostgreSQL()
	repo := auth.NewRepository(pg)

	// Clean in reverse dependency order
	tables := []string{
		"password_reset_tokens",
		"refresh_tokens",
		"users",
	}
	for _, table := range tables {
		if err := pg.Exec("DELETE FROM " + table).Error; err != nil {
			log.Fatalf("Failed to clean table %s: %v", table, err)
		}
	}
	fmt.Println("Database cleaned")

	seedUsers := []struct {
		Username string
		Email    string
		Password string
		Role     users.Role
	}{
		{"admin", "admin@monyorms.com", "Admin123!", users.RoleAdmin},
		{"demo", "demo@monyorms.com", "Demo123!", users.RoleUser},
	}

	for _, su := range seedUsers {
		hashed, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash password for %s: %v", su.Username, err)
		}

		user := &users.User{
			Username: su.Username,
			Email:    su.Email,
			Password: string(hashed),
			Role:     su.Role,
		}

		if err := repo.CreateUser(ctx, user); err != nil {
			log.Fatalf("Failed to create user %s: %v", su.Username, err)
		}
		fmt.Printf("Seeded user %s (%s)\n", su.Username, su.Role)
	}

	fmt.Println("Seeding completed")
}
