package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the identity service depends on.
// Implementations return NotFoundError and AlreadyExistsError from this
// package.
type Store interface {
	InsertUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	InsertAPIKey(ctx context.Context, k *APIKey) error
	DeleteAPIKey(ctx context.Context, id int64) error
	GetAPIKey(ctx context.Context, id int64) (*APIKey, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	ListAPIKeysForUser(ctx context.Context, userID string) ([]APIKey, error)
	TouchAPIKey(ctx context.Context, id int64, usedAt time.Time) error
}

// Service implements user and API key management.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an identity service backed by store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "identity"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser creates a new active user with a generated UUID.
func (s *Service) CreateUser(ctx context.Context, u *User) (*User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Groups == nil {
		u.Groups = []string{}
	}
	u.IsActive = true
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if err := s.store.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "username", u.Username, "user_id", u.ID)
	return u, nil
}

// GetUser retrieves a user by UUID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.GetUser(ctx, id)
}

// GetUserByUsername retrieves a user by username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.store.GetUserByUsername(ctx, username)
}

// ListUsers lists all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateUser updates a user's username, email, groups, and active flag.
func (s *Service) UpdateUser(ctx context.Context, u *User) (*User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user updated", "username", u.Username, "user_id", u.ID)
	return u, nil
}

// DeactivateUser soft-disables an account. Existing rows stay intact;
// the user's API keys stop validating and JWT logins are refused.
func (s *Service) DeactivateUser(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return u, nil
	}
	u.IsActive = false
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user deactivated", "username", u.Username, "user_id", u.ID)
	return u, nil
}

// DeleteUser removes a user and its API keys. Token usage rows are kept
// for accounting.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// SetGroups replaces a user's group memberships.
func (s *Service) SetGroups(ctx context.Context, id string, groups []string) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []string{}
	}
	u.Groups = groups
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Provision creates a user on first JWT login. The user starts with the
// groups carried by the token; afterwards the stored record is
// authoritative.
func (s *Service) Provision(ctx context.Context, username string, groups []string) (*User, error) {
	u := &User{
		Username: username,
		Groups:   groups,
	}
	created, err := s.CreateUser(ctx, u)
	if err != nil {
		// Concurrent first logins race on the unique username; the
		// loser reads the winner's record.
		if IsAlreadyExists(err) {
			return s.store.GetUserByUsername(ctx, username)
		}
		return nil, err
	}
	s.logger.Info("user provisioned from token", "username", username, "groups", groups)
	return created, nil
}

// CreateAPIKey mints a key for a user. The plaintext is present only in
// the returned CreatedKey and is never retrievable again.
func (s *Service) CreateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (*CreatedKey, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	plaintext, hash, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	key := &APIKey{
		UserID:    user.ID,
		Name:      name,
		KeyHash:   hash,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("api key created", "username", user.Username, "key_name", name, "key_id", key.ID)
	return &CreatedKey{APIKey: *key, Key: plaintext}, nil
}

// ListAPIKeys lists a user's keys. Hashes are never serialized.
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListAPIKeysForUser(ctx, userID)
}

// DeleteAPIKey removes a key by id.
func (s *Service) DeleteAPIKey(ctx context.Context, id int64) error {
	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	s.logger.Info("api key deleted", "key_id", id)
	return nil
}

// AuthenticateKey resolves a plaintext API key to its user. It verifies
// the key is active and unexpired, the owning user is active, and stamps
// last_used_at on success.
func (s *Service) AuthenticateKey(ctx context.Context, plaintext string) (*User, *APIKey, error) {
	key, err := s.store.GetAPIKeyByHash(ctx, HashKey(plaintext))
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	if !key.ValidAt(now) {
		return nil, nil, &ValidationError{Field: "api_key", Message: "api key is inactive or expired"}
	}

	user, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, &ValidationError{Field: "user", Message: "user is deactivated"}
	}

	if err := s.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		// Losing a last_used_at update must not fail authentication.
		s.logger.Warn("failed to stamp api key usage", "key_id", key.ID, "error", err)
	} else {
		key.LastUsedAt = &now
	}

	return user, key, nil
}
