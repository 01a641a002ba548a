package models

import "time"

// User represents an account within Kanojo Studio. Accounts are created on
// first sign-in from an identity provider.
type User struct {
	ID        string
	Email     string
	Name      *string
	Avatar    *string
	Provider  string
	Subject   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the normalized set of facts an identity provider returns after
// a successful code exchange.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Generation records a single prompt submission and its outcome.
type Generation struct {
	ID        string
	UserID    string
	Prompt    string
	Status    string
	URL       *string
	Error     *string
	CreatedAt time.Time
}

const (
	GenerationStatusPending   = "pending"
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

// Moment groups the photos produced for one generation request.
type Moment struct {
	ID        string
	UserID    string
	Prompt    string
	CreatedAt time.Time
	Photos    []Photo
}

// Photo is a single image belonging to a moment.
type Photo struct {
	ID        string
	MomentID  string
	URL       string
	CreatedAt time.Time
}

// Image is the raw payload returned by the image generation API.
type Image struct {
	Data     []byte
	MIMEType string
}

// SessionTokens groups the credentials issued to authenticated users.
type SessionTokens struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
