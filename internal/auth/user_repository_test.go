package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database/databasetest"
)

func newTestUserRepo(t *testing.T) *SQLiteUserRepository {
	t.Helper()
	return NewUserRepository(databasetest.Open(t).DB)
}

func createTestUser(t *testing.T, repo UserRepository, username, password string, admin bool) *User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	u := &User{Username: username, PasswordHash: hash, IsAdmin: admin, IsActive: true}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	return u
}

func TestUserRepository_CRUD(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()

	u := createTestUser(t, repo, "alice", "password-1", false)
	if u.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil || got.ID != u.ID || got.IsAdmin || !got.IsActive {
		t.Fatalf("GetByUsername() = %+v, %v", got, err)
	}
	if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(missing) error = %v", err)
	}

	if err := repo.Create(ctx, &User{Username: "alice", PasswordHash: "x"}); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Create(duplicate) error = %v", err)
	}
	if err := repo.Create(ctx, &User{Username: "bad name", PasswordHash: "x"}); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("Create(invalid) error = %v", err)
	}

	if err := repo.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := repo.TouchLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("TouchLogin() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, u.ID)
	if got.IsActive || got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Errorf("after SetActive/TouchLogin = %+v", got)
	}

	if err := repo.UpdatePassword(ctx, "nope", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword(missing) error = %v", err)
	}

	createTestUser(t, repo, "bob", "password-2", true)
	users, err := repo.List(ctx)
	if err != nil || len(users) != 2 || users[0].Username != "alice" {
		t.Errorf("List() = %+v, %v", users, err)
	}
	if n, _ := repo.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

type recordingLogger struct {
	warns, infos int
}

func (l *recordingLogger) Info(string, ...any) { l.infos++ }
func (l *recordingLogger) Warn(string, ...any) { l.warns++ }

func TestSeedAdmin(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()
	log := &recordingLogger{}

	password, err := SeedAdmin(ctx, repo, "admin", "", log)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if len(password) != 2*seedPasswordBytes {
		t.Errorf("generated password length = %d", len(password))
	}
	if log.warns != 1 {
		t.Errorf("generated password should be logged once as a warning, got %d", log.warns)
	}

	admin, err := repo.GetByUsername(ctx, "admin")
	if err != nil || !admin.IsAdmin || !admin.IsActive {
		t.Fatalf("seeded admin = %+v, %v", admin, err)
	}
	if ok, _ := VerifyPassword(password, admin.PasswordHash); !ok {
		t.Error("seeded password does not verify")
	}

	again, err := SeedAdmin(ctx, repo, "admin", "", log)
	if err != nil || again != "" {
		t.Errorf("SeedAdmin(again) = %q, %v; want skip", again, err)
	}
}

func TestSeedAdmin_ConfiguredPassword(t *testing.T) {
	repo := newTestUserRepo(t)
	log := &recordingLogger{}

	password, err := SeedAdmin(context.Background(), repo, "root", "configured-secret", log)
	if err != nil || password != "configured-secret" {
		t.Fatalf("SeedAdmin() = %q, %v", password, err)
	}
	if log.warns != 0 {
		t.Error("configured password must not be logged")
	}
}

func TestService_Login(t *testing.T) {
	repo := newTestUserRepo(t)
	ctx := context.Background()
	svc := NewService(repo, testSecret, time.Hour)

	alice := createTestUser(t, repo, "alice", "password-1", false)
	disabled := createTestUser(t, repo, "carol", "password-3", false)
	if err := repo.SetActive(ctx, disabled.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "alice", "password-1", nil},
		{"wrong password", "alice", "nope", ErrInvalidCredentials},
		{"unknown user", "mallory", "password-1", ErrInvalidCredentials},
		{"inactive", "carol", "password-3", ErrUserInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := svc.Login(ctx, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			subject, err := svc.Verify(tok.AccessToken)
			if err != nil || subject.UserID != alice.ID || subject.IsAdmin {
				t.Errorf("Verify() = %+v, %v", subject, err)
			}
			if tok.User.LastLoginAt == nil {
				t.Error("Login() did not record last login")
			}
		})
	}
}
