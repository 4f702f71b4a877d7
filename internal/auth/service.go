package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/notifications"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/config"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
	"github.com/karimlifatimaa/MonyoRMSAuth/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("username or email already exists")
	ErrTokenNotFound      = errors.New("token not found")
)

type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, username string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UpdateUserRole(ctx context.Context, id uuid.UUID, role users.Role) error
}

type service struct {
	repo          Repository
	tokens        *TokenService
	refreshTokens RefreshTokenStore
	resetTokens   PasswordResetTokenStore
	mailer        notifications.EmailSender
	config        *config.Config
	log           *logger.Logger
}

func NewService(
	repo Repository,
	tokens *TokenService,
	refreshTokens RefreshTokenStore,
	resetTokens PasswordResetTokenStore,
	mailer notifications.EmailSender,
	cfg *config.Config,
) Service {
	return &service{
		repo:          repo,
		tokens:        tokens,
		refreshTokens: refreshTokens,
		resetTokens:   resetTokens,
		mailer:        mailer,
		config:        cfg,
		log:           logger.GetDefault(),
	}
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	// Duplicate checks happen before any mutation
	exists, err := s.repo.UsernameExists(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: username taken", ErrDuplicateUser)
	}

	exists, err = s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: email taken", ErrDuplicateUser)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &users.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
		Role:     users.RoleUser,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.LogAuthSuccess(ctx, user.Username, "register")
	return s.issueTokens(ctx, user)
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.lookupByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// deliberately indistinguishable from a wrong password
			s.log.LogAuthFailure(ctx, "unknown identifier", req.Identifier)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		s.log.LogAuthFailure(ctx, "password mismatch", req.Identifier)
		return nil, ErrInvalidCredentials
	}

	s.log.LogAuthSuccess(ctx, user.Username, "login")
	return s.issueTokens(ctx, user)
}

// lookupByIdentifier resolves a user by username first, then by email.
func (s *service) lookupByIdentifier(ctx context.Context, identifier string) (*users.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	return s.repo.GetUserByEmail(ctx, identifier)
}

// issueTokens mints an access token carrying the user's current roles and
// replaces the user's persisted refresh record with a fresh one.
func (s *service) issueTokens(ctx context.Context, user *users.User) (*AuthResponse, error) {
	accessToken, err := s.tokens.GenerateAccess(user.Username, user.Roles())
	if err != nil {
		return nil, err
	}

	record, err := s.refreshTokens.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User: UserResponse{
			ID:        user.ID.String(),
			Username:  user.Username,
			Email:     user.Email,
			Role:      string(user.Role),
			CreatedAt: user.CreatedAt,
			UpdatedAt: user.UpdatedAt,
		},
		AccessToken:  accessToken,
		RefreshToken: record.Token,
		ExpiresIn:    s.tokens.AccessExpiresIn(),
	}, nil
}

// RefreshToken exchanges a live persisted refresh token for a new access
// token. Roles are re-read from the user row, so a role change takes effect
// on the next refresh. The refresh token itself is never rotated on use.
func (s *service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	record, err := s.refreshTokens.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	record, err = s.refreshTokens.VerifyExpiration(ctx, record)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccess(user.Username, user.Roles())
	if err != nil {
		return nil, err
	}

	s.log.LogTokenRefreshed(ctx, user.Username)
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: record.Token,
		ExpiresIn:    s.tokens.AccessExpiresIn(),
	}, nil
}

// Logout revokes the user's persisted refresh token. Already-issued access
// tokens stay valid until natural expiry; the short access TTL bounds that
// window.
func (s *service) Logout(ctx context.Context, username string) error {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.refreshTokens.DeleteByUser(ctx, user.ID)
}

func (s *service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	record, err := s.resetTokens.Create(ctx, user)
	if err != nil {
		return err
	}

	s.log.LogPasswordResetRequested(ctx, email)
	s.sendResetEmail(user, record.Token)
	return nil
}

// sendResetEmail dispatches the reset mail asynchronously; the HTTP response
// must not block on mail-server latency and send failures are logged only.
func (s *service) sendResetEmail(user *users.User, token string) {
	resetLink := s.config.Email.ResetBaseURL + "?token=" + url.QueryEscape(token)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		htmlBody, err := notifications.PasswordResetEmail(user.Username, resetLink, s.config.JWT.ResetExpiresIn)
		if err != nil {
			s.log.LogEmailSendFailed(ctx, user.Email, err)
			return
		}

		if err := s.mailer.SendHTML(ctx, user.Email, "Password Reset", htmlBody); err != nil {
			s.log.LogEmailSendFailed(ctx, user.Email, err)
		}
	}()
}

// ResetPassword consumes a reset token: the record is deleted on success, so
// a second attempt with the same token fails with ErrTokenNotFound.
func (s *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.resetTokens.FindByToken(ctx, token)
	if err != nil {
		return err
	}

	record, err = s.resetTokens.VerifyExpiration(ctx, record)
	if err != nil {
		return err
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateUserPassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return err
	}

	if err := s.resetTokens.DeleteByUser(ctx, user.ID); err != nil {
		return err
	}

	s.log.LogPasswordResetCompleted(ctx, user.Username)
	return nil
}

// DeleteUser cascades deletion of both token records before removing the user.
func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.refreshTokens.DeleteByUser(ctx, id); err != nil {
		return err
	}
	if err := s.resetTokens.DeleteByUser(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteUser(ctx, id)
}

// UpdateUserRole replaces the user's role set with a singleton. Authorization
// for this operation is the caller's concern.
func (s *service) UpdateUserRole(ctx context.Context, id uuid.UUID, role users.Role) error {
	return s.repo.UpdateUserRole(ctx, id, role)
}
