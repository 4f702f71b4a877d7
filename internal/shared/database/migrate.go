package database

import (
	"gorm.io/gorm"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/auth"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
		&auth.RefreshToken{},
		&auth.PasswordResetToken{},
	)
}
