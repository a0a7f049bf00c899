package pg

import (
	"context"
	"database/sql"
	"errors"

	"ads360.org/internal/auth"
)

func (s *Store) CreateRefreshToken(ctx context.Context, rec *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, revoked, expires_at, created_at)
		values ($1, $2, $3, false, $4, $5)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt)
	return err
}

func (s *Store) FindRefreshToken(ctx context.Context, id string) (auth.RefreshToken, error) {
	var rec auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, revoked, expires_at, created_at
		from refresh_tokens
		where id = $1
	`, id).Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RefreshToken{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.RefreshToken{}, err
	}
	return rec, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `update refresh_tokens set revoked = true where id = $1`, id)
	return err
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where user_id = $1 and not revoked
	`, userID)
	return err
}
