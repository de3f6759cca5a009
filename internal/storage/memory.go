package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/retosmicro/authsvc/internal/models"
)

// MemoryStorage is an in-memory Storage used by tests and local
// experiments. It mirrors the Postgres semantics: unique username and
// email, expired reset tokens invisible to lookups.
type MemoryStorage struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]models.User
	resets map[uuid.UUID]models.PasswordReset
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:  make(map[uuid.UUID]models.User),
		resets: make(map[uuid.UUID]models.PasswordReset),
	}
}

func (m *MemoryStorage) CreateUser(_ context.Context, nu NewUser) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == nu.Username || u.Email == nu.Email {
			return uuid.Nil, ErrDuplicate
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	m.users[id] = models.User{
		ID:           id,
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	return id, nil
}

func (m *MemoryStorage) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}

	return user, nil
}

func (m *MemoryStorage) GetUserByLogin(_ context.Context, identifier string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}

	return models.User{}, ErrNotFound
}

func (m *MemoryStorage) UserExists(_ context.Context, username, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}

	return false, nil
}

func (m *MemoryStorage) FindUserIDByEmail(_ context.Context, email string) (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			return u.ID, nil
		}
	}

	return uuid.Nil, ErrNotFound
}

func (m *MemoryStorage) UpdateLastLogin(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	m.users[userID] = user

	return nil
}

func (m *MemoryStorage) UpdateProfile(_ context.Context, userID uuid.UUID, upd models.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		user.Phone = upd.Phone
	}
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user

	return nil
}

func (m *MemoryStorage) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}

	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user

	return nil
}

func (m *MemoryStorage) DeleteUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	delete(m.users, userID)

	for id, r := range m.resets {
		if r.UserID == userID {
			delete(m.resets, id)
		}
	}

	return nil
}

func (m *MemoryStorage) ListUsers(_ context.Context, params ListParams) (models.UserPage, error) {
	params = params.Normalized()

	m.mu.RLock()
	defer m.mu.RUnlock()

	filtered := make([]models.User, 0, len(m.users))
	search := strings.ToLower(params.Search)
	for _, u := range m.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if params.Status != "" && u.Status != params.Status {
			continue
		}
		filtered = append(filtered, u)
	}

	sortUsers(filtered, params.SortBy, params.Order)

	page := models.UserPage{Items: []models.User{}, Total: len(filtered)}

	offset := (params.Page - 1) * params.Limit
	if offset >= len(filtered) {
		return page, nil
	}
	end := offset + params.Limit
	if end > len(filtered) {
		end = len(filtered)
	}
	page.Items = append(page.Items, filtered[offset:end]...)

	return page, nil
}

func sortUsers(users []models.User, sortBy, order string) {
	less := func(a, b models.User) bool {
		switch sortBy {
		case "id":
			return a.ID.String() < b.ID.String()
		case "username":
			return a.Username < b.Username
		case "email":
			return a.Email < b.Email
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "last_login_at":
			switch {
			case a.LastLoginAt == nil:
				return b.LastLoginAt != nil
			case b.LastLoginAt == nil:
				return false
			default:
				return a.LastLoginAt.Before(*b.LastLoginAt)
			}
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}

	sort.SliceStable(users, func(i, j int) bool {
		if order == "asc" {
			return less(users[i], users[j])
		}
		return less(users[j], users[i])
	})
}

func (m *MemoryStorage) CreatePasswordReset(_ context.Context, reset models.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resets[reset.ID] = reset

	return nil
}

func (m *MemoryStorage) GetPasswordReset(_ context.Context, token string) (models.PasswordReset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.resets {
		if r.Token == token && time.Now().UTC().Before(r.ExpiresAt) {
			return r, nil
		}
	}

	return models.PasswordReset{}, ErrNotFound
}

func (m *MemoryStorage) DeletePasswordResetsForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.resets {
		if r.UserID == userID {
			delete(m.resets, id)
		}
	}

	return nil
}

// SeedReset injects a reset row directly, bypassing token generation.
func (m *MemoryStorage) SeedReset(reset models.PasswordReset) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resets[reset.ID] = reset
}

// SetRole promotes or demotes a user directly.
func (m *MemoryStorage) SetRole(userID uuid.UUID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.users[userID]; ok {
		user.Role = role
		m.users[userID] = user
	}
}

func (m *MemoryStorage) Close() {}
