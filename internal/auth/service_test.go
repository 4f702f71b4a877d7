package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/users"
)

// in-memory Repository

type fakeRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*users.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[uuid.UUID]*users.User)}
}

func (r *fakeRepo) CreateUser(_ context.Context, user *users.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeRepo) GetUserByUsername(_ context.Context, username string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, ErrUserNotFound
}

func (r *fakeRepo) UpdateUserPassword(_ context.Context, id uuid.UUID, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Password = hashedPassword
	return nil
}

func (r *fakeRepo) UpdateUserRole(_ context.Context, id uuid.UUID, role users.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (r *fakeRepo) DeleteUser(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	_, err := r.GetUserByUsername(nil, username)
	return err == nil, nil
}

func (r *fakeRepo) EmailExists(_ context.Context, email string) (bool, error) {
	_, err := r.GetUserByEmail(nil, email)
	return err == nil, nil
}

// in-memory refresh token store

type fakeRefreshStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*RefreshToken // keyed by token string
}

func newFakeRefreshStore(ttl time.Duration) *fakeRefreshStore {
	return &fakeRefreshStore{ttl: ttl, records: make(map[string]*RefreshToken)}
}

func (s *fakeRefreshStore) Create(_ context.Context, user *users.User) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.records {
		if record.UserID == user.ID {
			delete(s.records, token)
		}
	}
	record := &RefreshToken{
		ID:        uuid.New(),
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.records[record.Token] = record
	return record, nil
}

func (s *fakeRefreshStore) FindByToken(_ context.Context, token string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[token]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, ErrTokenNotFound
}

func (s *fakeRefreshStore) VerifyExpiration(_ context.Context, token *RefreshToken) (*RefreshToken, error) {
	if !IsExpired(token.ExpiresAt) {
		return token, nil
	}
	s.mu.Lock()
	delete(s.records, token.Token)
	s.mu.Unlock()
	return nil, ErrTokenExpired
}

func (s *fakeRefreshStore) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.records {
		if record.UserID == userID {
			delete(s.records, token)
		}
	}
	return nil
}

func (s *fakeRefreshStore) expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[token]; ok {
		record.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// in-memory reset token store

type fakeResetStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*PasswordResetToken
}

func newFakeResetStore(ttl time.Duration) *fakeResetStore {
	return &fakeResetStore{ttl: ttl, records: make(map[string]*PasswordResetToken)}
}

func (s *fakeResetStore) Create(_ context.Context, user *users.User) (*PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.records {
		if record.UserID == user.ID {
			delete(s.records, token)
		}
	}
	record := &PasswordResetToken{
		ID:        uuid.New(),
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.records[record.Token] = record
	return record, nil
}

func (s *fakeResetStore) FindByToken(_ context.Context, token string) (*PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[token]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, ErrTokenNotFound
}

func (s *fakeResetStore) VerifyExpiration(_ context.Context, token *PasswordResetToken) (*PasswordResetToken, error) {
	if !IsExpired(token.ExpiresAt) {
		return token, nil
	}
	s.mu.Lock()
	delete(s.records, token.Token)
	s.mu.Unlock()
	return nil, ErrTokenExpired
}

func (s *fakeResetStore) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.records {
		if record.UserID == userID {
			delete(s.records, token)
		}
	}
	return nil
}

func (s *fakeResetStore) tokenFor(userID uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.records {
		if record.UserID == userID {
			return token, true
		}
	}
	return "", false
}

func (s *fakeResetStore) expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[token]; ok {
		record.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// mailer recording sends on a channel so tests can wait for the async dispatch

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	sent chan sentMail
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: make(chan sentMail, 4)}
}

func (m *fakeMailer) SendHTML(_ context.Context, to, subject, htmlBody string) error {
	m.sent <- sentMail{To: to, Subject: subject, Body: htmlBody}
	return nil
}

type serviceFixture struct {
	service Service
	repo    *fakeRepo
	refresh *fakeRefreshStore
	reset   *fakeResetStore
	mailer  *fakeMailer
	tokens  *TokenService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cfg := testConfig(testSecret('a'))
	cfg.Email.ResetBaseURL = "http://localhost:8080/api/v1/auth/reset-password"

	tokens, err := NewTokenService(cfg)
	require.NoError(t, err)

	repo := newFakeRepo()
	refresh := newFakeRefreshStore(cfg.JWT.RefreshExpiresIn)
	reset := newFakeResetStore(cfg.JWT.ResetExpiresIn)
	mailer := newFakeMailer()

	return &serviceFixture{
		service: NewService(repo, tokens, refresh, reset, mailer, cfg),
		repo:    repo,
		refresh: refresh,
		reset:   reset,
		mailer:  mailer,
		tokens:  tokens,
	}
}

func (f *serviceFixture) register(t *testing.T, username, email, password string) *AuthResponse {
	t.Helper()
	resp, err := f.service.Register(context.Background(), &RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return resp
}

func TestRegister(t *testing.T) {
	f := newServiceFixture(t)

	resp := f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, string(users.RoleUser), resp.User.Role)
	assert.NotEmpty(t, resp.RefreshToken)

	claims, err := f.tokens.Decode(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"USER"}, claims.Roles)

	// password is stored hashed, never verbatim
	stored, err := f.repo.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("Aa1!aaaa")))
}

func TestRegister_Duplicate(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	_, err := f.service.Register(context.Background(), &RegisterRequest{
		Username: "alice", Email: "other@x.com", Password: "Aa1!aaaa",
	})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	_, err = f.service.Register(context.Background(), &RegisterRequest{
		Username: "other", Email: "a@x.com", Password: "Aa1!aaaa",
	})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestLogin(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	// by username
	resp, err := f.service.Login(context.Background(), &LoginRequest{Identifier: "alice", Password: "Aa1!aaaa"})
	require.NoError(t, err)
	assert.True(t, f.tokens.Validate(resp.AccessToken, "alice"))

	// by email
	resp, err = f.service.Login(context.Background(), &LoginRequest{Identifier: "a@x.com", Password: "Aa1!aaaa"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	_, err := f.service.Login(context.Background(), &LoginRequest{Identifier: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// unknown identifier reports the same failure as a wrong password
	_, err = f.service.Login(context.Background(), &LoginRequest{Identifier: "nobody", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshToken(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	pair, err := f.service.RefreshToken(context.Background(), resp.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, resp.RefreshToken, pair.RefreshToken, "refresh token is never rotated on use")
	assert.True(t, f.tokens.Validate(pair.AccessToken, "alice"))
}

func TestRefreshToken_NotFound(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.RefreshToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRefreshToken_ExpiredIsDeleted(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	f.refresh.expire(resp.RefreshToken)

	_, err := f.service.RefreshToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// cleanup happened; the record is gone
	_, err = f.service.RefreshToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRefreshToken_PicksUpCurrentRoles(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	user, err := f.repo.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, f.service.UpdateUserRole(context.Background(), user.ID, users.RoleAdmin))

	pair, err := f.service.RefreshToken(context.Background(), resp.RefreshToken)
	require.NoError(t, err)

	roles, err := f.tokens.ExtractRoles(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, roles, "role set is replaced, not unioned")
}

func TestLogout(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	require.NoError(t, f.service.Logout(context.Background(), "alice"))

	_, err := f.service.RefreshToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// idempotent
	assert.NoError(t, f.service.Logout(context.Background(), "alice"))
}

func TestLogout_UnknownUser(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.Logout(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestForgotPassword_SendsMailWithToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	require.NoError(t, f.service.ForgotPassword(context.Background(), "a@x.com"))

	user, err := f.repo.GetUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)

	token, ok := f.reset.tokenFor(user.ID)
	require.True(t, ok, "a reset record was created")

	select {
	case mail := <-f.mailer.sent:
		assert.Equal(t, "a@x.com", mail.To)
		assert.Contains(t, mail.Body, token, "mail embeds the raw token")
	case <-time.After(2 * time.Second):
		t.Fatal("reset mail was never dispatched")
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.ForgotPassword(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	select {
	case <-f.mailer.sent:
		t.Fatal("no mail must be sent for an unknown email")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	require.NoError(t, f.service.ForgotPassword(context.Background(), "a@x.com"))

	user, err := f.repo.GetUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	token, ok := f.reset.tokenFor(user.ID)
	require.True(t, ok)

	require.NoError(t, f.service.ResetPassword(context.Background(), token, "Bb2!bbbb"))

	// old password no longer works, new one does
	_, err = f.service.Login(context.Background(), &LoginRequest{Identifier: "alice", Password: "Aa1!aaaa"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.service.Login(context.Background(), &LoginRequest{Identifier: "alice", Password: "Bb2!bbbb"})
	assert.NoError(t, err)

	// consumed token cannot be replayed
	err = f.service.ResetPassword(context.Background(), token, "Cc3!cccc")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	require.NoError(t, f.service.ForgotPassword(context.Background(), "a@x.com"))

	user, err := f.repo.GetUserByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	token, ok := f.reset.tokenFor(user.ID)
	require.True(t, ok)

	f.reset.expire(token)

	err = f.service.ResetPassword(context.Background(), token, "Bb2!bbbb")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestDeleteUser_CascadesTokens(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	user, err := f.repo.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteUser(context.Background(), user.ID))

	_, err = f.repo.GetUserByID(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.service.RefreshToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestDeleteUser_NotFound(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.DeleteUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUserRole(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	user, err := f.repo.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, f.service.UpdateUserRole(context.Background(), user.ID, users.RoleAdmin))

	updated, err := f.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, updated.Role)
	assert.Equal(t, []string{"ADMIN"}, updated.Roles())

	err = f.service.UpdateUserRole(context.Background(), uuid.New(), users.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// keep the reset link stable for mail templates
func TestResetLinkEscapesToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "alice", "a@x.com", "Aa1!aaaa")

	require.NoError(t, f.service.ForgotPassword(context.Background(), "a@x.com"))

	select {
	case mail := <-f.mailer.sent:
		assert.True(t, strings.Contains(mail.Body, "reset-password?token="))
	case <-time.After(2 * time.Second):
		t.Fatal("reset mail was never dispatched")
	}
}
