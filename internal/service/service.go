package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/retosmicro/authsvc/internal/auth"
	"github.com/retosmicro/authsvc/internal/models"
	"github.com/retosmicro/authsvc/internal/storage"
)

const (
	minPasswordLen = 8

	resetTokenLen = 48 // ~285 bits from the 62-symbol alphabet
	resetTokenTTL = time.Hour
)

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (models.User, string, error)
	Login(ctx context.Context, identifier, password string) (models.User, string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error

	Profile(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
	ListUsers(ctx context.Context, params storage.ListParams) (models.UserPage, storage.ListParams, error)
}

type service struct {
	storage    storage.Storage
	tokens     *auth.TokenManager
	bcryptCost int
}

func NewService(st storage.Storage, tokens *auth.TokenManager, bcryptCost int) *service {
	return &service{
		storage:    st,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
}

func (s *service) Register(ctx context.Context, in RegisterInput) (models.User, string, error) {
	const op = "service.Register"

	exists, err := s.storage.UserExists(ctx, in.Username, in.Email)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return models.User{}, "", ErrConflict
	}

	passwordHash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.storage.CreateUser(ctx, storage.NewUser{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	if err != nil {
		// The pre-check can lose a race; the unique constraint is the
		// authority and reports the same conflict.
		if errors.Is(err, storage.ErrDuplicate) {
			return models.User{}, "", ErrConflict
		}
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.Issue(user.Username, user.ID, user.Role)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

func (s *service) Login(ctx context.Context, identifier, password string) (models.User, string, error) {
	const op = "service.Login"

	user, err := s.storage.GetUserByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, "", ErrInvalidCredentials
		}
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if ok := auth.CheckPassword(user.PasswordHash, password); !ok {
		return models.User{}, "", ErrInvalidCredentials
	}

	if err := s.storage.UpdateLastLogin(ctx, user.ID); err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err = s.storage.GetUserByID(ctx, user.ID)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.tokens.Issue(user.Username, user.ID, user.Role)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

// RequestPasswordReset returns the generated token so the caller can
// hand it to the delivery side. An unknown email yields an empty token
// and no error: the HTTP response must not betray whether the account
// exists.
func (s *service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	const op = "service.RequestPasswordReset"

	userID, err := s.storage.FindUserIDByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := auth.RandomString(resetTokenLen)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resetID, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	reset := models.PasswordReset{
		ID:        resetID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(resetTokenTTL),
	}

	if err := s.storage.CreatePasswordReset(ctx, reset); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

func (s *service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	const op = "service.ConfirmPasswordReset"

	if len(newPassword) < minPasswordLen {
		return ErrPasswordTooShort
	}

	reset, err := s.storage.GetPasswordReset(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePassword(ctx, reset.UserID, passwordHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Consuming one token retires every outstanding token for the user.
	if err := s.storage.DeletePasswordResetsForUser(ctx, reset.UserID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "service.Profile"

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	const op = "service.UpdateProfile"

	if upd.Empty() {
		return models.User{}, ErrNoFields
	}

	if err := s.storage.UpdateProfile(ctx, userID, upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error {
	const op = "service.ChangePassword"

	if len(newPassword) < minPasswordLen {
		return ErrPasswordTooShort
	}

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if ok := auth.CheckPassword(user.PasswordHash, current); !ok {
		return ErrWrongPassword
	}

	passwordHash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	const op = "service.DeleteAccount"

	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *service) ListUsers(ctx context.Context, params storage.ListParams) (models.UserPage, storage.ListParams, error) {
	const op = "service.ListUsers"

	params = params.Normalized()

	page, err := s.storage.ListUsers(ctx, params)
	if err != nil {
		return models.UserPage{}, params, fmt.Errorf("%s: %w", op, err)
	}

	return page, params, nil
}
