package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ads360.org/internal/rbac"
)

type fakeUserStore struct {
	rbac.Store

	users map[string]rbac.User
}

func (f *fakeUserStore) FindUserByEmail(ctx context.Context, email string) (rbac.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return rbac.User{}, rbac.ErrNotFound
}

func (f *fakeUserStore) Principal(ctx context.Context, userID string) (rbac.Principal, error) {
	u, ok := f.users[userID]
	if !ok || !u.Active {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return rbac.Principal{
		UserID:   u.ID,
		Email:    u.Email,
		RoleName: rbac.RolePartner,
		EntityID: u.EntityID,
		Active:   u.Active,
	}, nil
}

type memTokenStore struct {
	records map[string]*RefreshToken
}

func newMemTokenStore() *memTokenStore { return &memTokenStore{records: map[string]*RefreshToken{}} }

func (m *memTokenStore) CreateRefreshToken(_ context.Context, rec *RefreshToken) error {
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memTokenStore) FindRefreshToken(_ context.Context, id string) (RefreshToken, error) {
	rec, ok := m.records[id]
	if !ok {
		return RefreshToken{}, errors.New("not found")
	}
	return *rec, nil
}

func (m *memTokenStore) RevokeRefreshToken(_ context.Context, id string) error {
	if rec, ok := m.records[id]; ok {
		rec.Revoked = true
	}
	return nil
}

func (m *memTokenStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, rec := range m.records {
		if rec.UserID == userID {
			rec.Revoked = true
		}
	}
	return nil
}

func newTestService(t *testing.T, tokens RefreshTokenStore, opts ...Option) *Service {
	t.Helper()
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := &fakeUserStore{users: map[string]rbac.User{
		"u1": {ID: "u1", Email: "partner@ads360.org", EntityID: "ent-1", Active: true, PasswordHash: hash},
		"u2": {ID: "u2", Email: "blocked@ads360.org", Active: false, PasswordHash: hash},
	}}
	rbacSvc, err := rbac.NewService(store, nil)
	if err != nil {
		t.Fatalf("rbac.NewService: %v", err)
	}
	svc, err := NewService(rbacSvc, tokens, "unit-test-secret", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("verify correct password: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := VerifyPassword("not-a-hash", "x"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestIssueTokenPairAndAuthenticate(t *testing.T) {
	svc := newTestService(t, newMemTokenStore())
	ctx := context.Background()

	pair, principal, err := svc.IssueTokenPair(ctx, "Partner@ads360.org ", "s3cret-pass")
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}
	if principal.UserID != "u1" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}

	got, err := svc.AuthenticateToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if got.UserID != "u1" || got.EntityID != "ent-1" {
		t.Fatalf("unexpected authenticated principal: %+v", got)
	}
}

func TestIssueTokenPairRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, newMemTokenStore())
	ctx := context.Background()

	cases := []struct{ email, password string }{
		{"partner@ads360.org", "wrong"},
		{"missing@ads360.org", "s3cret-pass"},
		{"blocked@ads360.org", "s3cret-pass"},
		{"", ""},
	}
	for _, tc := range cases {
		if _, _, err := svc.IssueTokenPair(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("email=%q: expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	tokens := newMemTokenStore()
	svc := newTestService(t, tokens)
	ctx := context.Background()

	pair, _, err := svc.IssueTokenPair(ctx, "partner@ads360.org", "s3cret-pass")
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	next, _, err := svc.RefreshTokenPair(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokenPair: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}

	// The presented token is single-use.
	if _, _, err := svc.RefreshTokenPair(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
}

func TestRefreshTokenWrongSecretRevokesRecord(t *testing.T) {
	tokens := newMemTokenStore()
	svc := newTestService(t, tokens)
	ctx := context.Background()

	pair, _, err := svc.IssueTokenPair(ctx, "partner@ads360.org", "s3cret-pass")
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}
	id, _, err := splitRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}

	if _, _, err := svc.RefreshTokenPair(ctx, id+".forged-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	rec, err := tokens.FindRefreshToken(ctx, id)
	if err != nil {
		t.Fatalf("FindRefreshToken: %v", err)
	}
	if !rec.Revoked {
		t.Fatal("expected record revoked after hash mismatch")
	}
}

func TestAuthenticateTokenRejectsExpired(t *testing.T) {
	base := time.Now()
	clock := base
	svc := newTestService(t, newMemTokenStore(),
		WithAccessTTL(time.Minute),
		WithClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	pair, _, err := svc.IssueTokenPair(ctx, "partner@ads360.org", "s3cret-pass")
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	clock = base.Add(2 * time.Minute)
	if _, err := svc.AuthenticateToken(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestAuthenticateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(t, newMemTokenStore())
	for _, token := range []string{"", "   ", "a.b.c", "not-a-jwt"} {
		if _, err := svc.AuthenticateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token=%q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
