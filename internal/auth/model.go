package auth

import "time"

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Provider     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenInfo is one issued refresh token. The raw token is never stored, only
// its sha256 hash. A row is terminal once RevokedAt is set or ExpiresAt has
// passed; rotation marks the old row revoked and links it to its successor.
type TokenInfo struct {
	ID         string
	UserID     string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
}

// AuthResponse is the transient DTO returned by every auth endpoint. Email is
// set only by external login, where the caller does not know which local
// account the provider identity resolved to.
type AuthResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiration   time.Time `json:"expiration"`
	Email        string    `json:"email,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

type LoginAttempt struct {
	Email          string
	FailedAttempts int
	LockedUntil    *time.Time
}
