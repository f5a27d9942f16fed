package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern allows alphanumerics, dots, hyphens and underscores.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// User is an account that can log in.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Subject returns the identity carried through access checks.
func (u *User) Subject() Subject {
	return Subject{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
}

// Subject is the authenticated caller of an operation. The zero value is an
// anonymous caller with no access.
type Subject struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// Anonymous reports whether no user is attached.
func (s Subject) Anonymous() bool {
	return s.UserID == ""
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user account is inactive")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrInvalidUsername    = errors.New("auth: invalid username")
	ErrPasswordTooShort   = errors.New("auth: password too short")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTicketInvalid      = errors.New("auth: invalid or expired ticket")
)
