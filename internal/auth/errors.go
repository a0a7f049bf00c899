package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when email or password do not match
	// an active account. Callers must not distinguish the two cases.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
)
