package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const seedPasswordBytes = 16

// Logger is the logging dependency of SeedAdmin.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// SeedAdmin creates the first administrator when no users exist.
//
// If password is empty a random one is generated and logged once; it
// should be changed immediately. The password in effect is returned, or
// an empty string when seeding was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, username, password string, logger Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	generated := password == ""
	if generated {
		b := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(b)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		logger.Warn("seed admin account created",
			"username", username,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed admin account created", "username", username)
	}
	return password, nil
}
