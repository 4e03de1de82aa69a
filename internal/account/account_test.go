package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	svc, err := NewService(store.Users(), store.Sessions(), testSecret, opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, store
}

func validRegistration() Registration {
	return Registration{
		Email:    "ana@example.com",
		Name:     "Ana",
		LastName: "García",
		Username: "anag",
		Password: "secret1",
	}
}

func TestNewService_RequiresSecret(t *testing.T) {
	store := NewMemoryStore()
	if _, err := NewService(store.Users(), store.Sessions(), nil); err == nil {
		t.Error("NewService(nil secret) should return error")
	}
}

func TestRegistration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Registration)
		wantErr bool
	}{
		{"valid", func(r *Registration) {}, false},
		{"no last name", func(r *Registration) { r.LastName = "" }, false},
		{"bad email", func(r *Registration) { r.Email = "not-an-email" }, true},
		{"short name", func(r *Registration) { r.Name = "A" }, true},
		{"short username", func(r *Registration) { r.Username = "ab" }, true},
		{"short password", func(r *Registration) { r.Password = "12345" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := validRegistration()
			tt.mutate(&reg)
			err := reg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	profile, token, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if profile.Username != "anag" {
		t.Errorf("Username = %q, want %q", profile.Username, "anag")
	}
	if token == "" {
		t.Fatal("Register() returned empty token")
	}

	userID, err := svc.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != profile.ID {
		t.Errorf("Validate() = %q, want %q", userID, profile.ID)
	}

	for _, login := range []string{"ana@example.com", "anag"} {
		got, loginToken, err := svc.Login(ctx, login, "secret1")
		if err != nil {
			t.Fatalf("Login(%q) error = %v", login, err)
		}
		if got.ID != profile.ID {
			t.Errorf("Login(%q) ID = %q, want %q", login, got.ID, profile.ID)
		}
		if loginToken == token {
			t.Errorf("Login(%q) reused the registration token", login)
		}
	}
}

func TestRegister_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, _, err := svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	dup := validRegistration()
	dup.Email = "other@example.com"
	if _, _, err := svc.Register(ctx, dup); !errors.Is(err, ErrUserExists) {
		t.Errorf("Register(duplicate username) error = %v, want ErrUserExists", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, _, err := svc.Register(ctx, validRegistration()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		login    string
		password string
	}{
		{"wrong password", "anag", "wrong-password"},
		{"unknown user", "nobody", "secret1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tt.login, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, token, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	otherSigned, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	unrecorded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", token + "x"},
		{"wrong secret", otherSigned},
		{"not recorded", unrecorded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Validate(ctx, tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Validate() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestValidate_Expired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	svc, store := newTestService(t, WithClock(func() time.Time { return now }), WithSessionTTL(time.Hour))

	_, token, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	now = now.Add(2 * time.Hour)
	store.now = func() time.Time { return now }

	if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Validate(expired) error = %v, want ErrUnauthorized", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, token, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Validate(after logout) error = %v, want ErrUnauthorized", err)
	}
	if err := svc.Logout(ctx, token); err != nil {
		t.Errorf("Logout(again) error = %v, want nil", err)
	}
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	registered, _, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := svc.Profile(ctx, registered.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if got != registered {
		t.Errorf("Profile() = %+v, want %+v", got, registered)
	}

	if _, err := svc.Profile(ctx, uuid.NewString()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Profile(unknown) error = %v, want ErrUnauthorized", err)
	}
}

func TestLogin_RecordsLoginTime(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	registered, _, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, _, err := svc.Login(ctx, "anag", "secret1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	user, err := store.Users().Get(ctx, uuid.MustParse(registered.ID))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if user.LastLoginAt == nil {
		t.Error("LastLoginAt = nil after login")
	}
}
