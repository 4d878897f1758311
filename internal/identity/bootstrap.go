package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// SeededUser defines a user to be created at startup.
type SeededUser struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
	Role        string
}

// Bootstrap creates the overseer and any seeded users idempotently.
type Bootstrap struct {
	users store.UserStore
	auth  *UserAuth
	log   *slog.Logger
}

// NewBootstrap creates a new bootstrap handler.
func NewBootstrap(users store.UserStore, auth *UserAuth, log *slog.Logger) *Bootstrap {
	return &Bootstrap{
		users: users,
		auth:  auth,
		log:   logutil.Component(log, "bootstrap"),
	}
}

// Run creates the overseer user and any seeded users.
// Returns the number of users created (0 if all already exist).
func (b *Bootstrap) Run(ctx context.Context, overseer SeededUser, seeded []SeededUser) (int, error) {
	var created int

	if overseer.Username != "" {
		overseer.Role = RoleOverseer
		n, err := b.ensureUser(ctx, overseer)
		if err != nil {
			return created, err
		}
		created += n
	}

	for _, s := range seeded {
		n, err := b.ensureUser(ctx, s)
		if err != nil {
			return created, err
		}
		created += n
	}

	return created, nil
}

func (b *Bootstrap) ensureUser(ctx context.Context, s SeededUser) (int, error) {
	_, err := b.users.GetUserByUsername(ctx, s.Username)
	if err == nil {
		b.log.Debug("user already exists", "username", s.Username)
		return 0, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	hash, err := b.auth.HashPassword(s.Password)
	if err != nil {
		return 0, err
	}

	role := s.Role
	if !ValidRole(role) {
		role = RoleRequester
	}
	displayName := s.DisplayName
	if displayName == "" {
		displayName = s.Username
	}

	user := &store.User{
		ID:           NewID(),
		Username:     s.Username,
		DisplayName:  displayName,
		Email:        s.Email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := b.users.CreateUser(ctx, user); err != nil {
		return 0, err
	}

	b.log.Info("seeded user", "username", s.Username, "role", role)
	return 1, nil
}

// NewID generates a UUIDv7 (time-ordered), falling back to V4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
