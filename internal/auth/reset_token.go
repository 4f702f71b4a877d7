package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
)

// PasswordResetToken is the short-lived, single-use credential mailed out by
// the forgot-password flow. The orchestrator deletes it immediately after a
// successful reset; expiry detection deletes it as well.
type PasswordResetToken struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Token     string     `json:"token" gorm:"uniqueIndex;not null"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	User      users.User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time  `json:"created_at"`
}

func (t *PasswordResetToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type PasswordResetTokenStore interface {
	Create(ctx context.Context, user *users.User) (*PasswordResetToken, error)
	FindByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	VerifyExpiration(ctx context.Context, token *PasswordResetToken) (*PasswordResetToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type passwordResetTokenStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewPasswordResetTokenStore(db *gorm.DB, ttl time.Duration) PasswordResetTokenStore {
	return &passwordResetTokenStore{
		db:  db,
		ttl: ttl,
	}
}

// Create deletes any earlier token for the user before inserting the new one,
// so a repeated forgot-password request invalidates the previous mail.
func (s *passwordResetTokenStore) Create(ctx context.Context, user *users.User) (*PasswordResetToken, error) {
	record := &PasswordResetToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *passwordResetTokenStore) FindByToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	var record PasswordResetToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &record, nil
}

// VerifyExpiration deletes an expired record and fails with ErrTokenExpired,
// signaling that the mailed link is dead and a new request is required.
func (s *passwordResetTokenStore) VerifyExpiration(ctx context.Context, token *PasswordResetToken) (*PasswordResetToken, error) {
	if !IsExpired(token.ExpiresAt) {
		return token, nil
	}

	if err := s.db.WithContext(ctx).Delete(token).Error; err != nil {
		return nil, err
	}
	return nil, ErrTokenExpired
}

func (s *passwordResetTokenStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&PasswordResetToken{}).Error
}
