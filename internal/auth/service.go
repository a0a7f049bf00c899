package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"ads360.org/internal/ids"
	"ads360.org/internal/rbac"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// RefreshToken is the at-rest record of an issued refresh token. Only the
// sha256 of the secret half is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshTokenStore persists refresh token records.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, rec *RefreshToken) error
	FindRefreshToken(ctx context.Context, id string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// Service authenticates credentials and issues token pairs.
type Service struct {
	rbac   *rbac.Service
	tokens RefreshTokenStore
	secret []byte

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service. The secret signs HS256 access tokens and
// must be non-empty.
func NewService(rbacSvc *rbac.Service, tokens RefreshTokenStore, secret string, opts ...Option) (*Service, error) {
	if rbacSvc == nil {
		return nil, errors.New("auth: rbac service is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		rbac:       rbacSvc,
		tokens:     tokens,
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// IssueTokenPair authenticates credentials and issues fresh tokens.
func (s *Service) IssueTokenPair(ctx context.Context, email, password string) (TokenPair, rbac.Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, rbac.Principal{}, ErrInvalidCredentials
	}
	user, err := s.rbac.FindUserByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, ErrInvalidCredentials
	}
	if !user.Active {
		return TokenPair{}, rbac.Principal{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, rbac.Principal{}, ErrInvalidCredentials
	}
	principal, err := s.rbac.ResolvePrincipal(ctx, user.ID)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, ErrInvalidCredentials
	}
	pair, err := s.mintTokens(ctx, principal)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, err
	}
	return pair, principal, nil
}

// RefreshTokenPair rotates the refresh token and issues new credentials.
func (s *Service) RefreshTokenPair(ctx context.Context, refreshToken string) (TokenPair, rbac.Principal, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, ErrInvalidToken
	}

	record, err := s.tokens.FindRefreshToken(ctx, tokenID)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return TokenPair{}, rbac.Principal{}, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = s.tokens.RevokeRefreshToken(ctx, record.ID)
		return TokenPair{}, rbac.Principal{}, ErrInvalidToken
	}

	principal, err := s.rbac.ResolvePrincipal(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, ErrInvalidToken
	}

	// Rotate: the presented token is single-use.
	if err := s.tokens.RevokeRefreshToken(ctx, record.ID); err != nil {
		return TokenPair{}, rbac.Principal{}, err
	}

	pair, err := s.mintTokens(ctx, principal)
	if err != nil {
		return TokenPair{}, rbac.Principal{}, err
	}
	return pair, principal, nil
}

// AuthenticateToken validates an access token and resolves its principal.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (rbac.Principal, error) {
	claims, err := s.verifyAccessToken(token)
	if err != nil {
		return rbac.Principal{}, ErrInvalidToken
	}
	principal, err := s.rbac.ResolvePrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return rbac.Principal{}, ErrInvalidToken
		}
		return rbac.Principal{}, err
	}
	return principal, nil
}

// Logout revokes every refresh token issued to the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidToken
	}
	return s.tokens.RevokeUserRefreshTokens(ctx, userID)
}

func (s *Service) mintTokens(ctx context.Context, principal rbac.Principal) (TokenPair, error) {
	now := s.now().UTC()
	accessToken, accessExp, err := s.signAccessToken(principal, now)
	if err != nil {
		return TokenPair{}, err
	}
	refreshString, rec, err := s.generateRefreshToken(principal.UserID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.tokens.CreateRefreshToken(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshString,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	rec := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	return tokenID + "." + secret, rec, nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
