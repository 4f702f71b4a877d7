package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
)

// RefreshToken is the persisted long-lived credential exchanged for new
// access tokens. At most one live row exists per user; logout and user
// deletion remove it.
type RefreshToken struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Token     string     `json:"token" gorm:"uniqueIndex;not null"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	User      users.User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time  `json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type RefreshTokenStore interface {
	Create(ctx context.Context, user *users.User) (*RefreshToken, error)
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	VerifyExpiration(ctx context.Context, token *RefreshToken) (*RefreshToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type refreshTokenStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewRefreshTokenStore(db *gorm.DB, ttl time.Duration) RefreshTokenStore {
	return &refreshTokenStore{
		db:  db,
		ttl: ttl,
	}
}

// Create replaces any existing record for the user with a fresh one. The
// delete and insert run in one transaction so concurrent logins for the same
// user cannot leave an orphaned duplicate behind.
func (s *refreshTokenStore) Create(ctx context.Context, user *users.User) (*RefreshToken, error) {
	record := &RefreshToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.ttl),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *refreshTokenStore) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	var record RefreshToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &record, nil
}

// VerifyExpiration returns the record unchanged while it is still live. An
// expired record is deleted and ErrTokenExpired returned; the caller must
// treat that as "re-authenticate", not as retryable.
func (s *refreshTokenStore) VerifyExpiration(ctx context.Context, token *RefreshToken) (*RefreshToken, error) {
	if !IsExpired(token.ExpiresAt) {
		return token, nil
	}

	if err := s.db.WithContext(ctx).Delete(token).Error; err != nil {
		return nil, err
	}
	return nil, ErrTokenExpired
}

// DeleteByUser is idempotent; deleting for a user with no record is a no-op.
func (s *refreshTokenStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&RefreshToken{}).Error
}
