package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/retosmicro/authsvc/internal/models"
)

const (
	usersTable          = "users"
	passwordResetsTable = "password_resets"

	uniqueViolationCode = "23505"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

type Storage interface {
	// Пользователи
	CreateUser(ctx context.Context, nu NewUser) (uuid.UUID, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByLogin(ctx context.Context, identifier string) (models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	FindUserIDByEmail(ctx context.Context, email string) (uuid.UUID, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	ListUsers(ctx context.Context, params ListParams) (models.UserPage, error)

	// Токены сброса пароля
	CreatePasswordReset(ctx context.Context, reset models.PasswordReset) error
	GetPasswordReset(ctx context.Context, token string) (models.PasswordReset, error)
	DeletePasswordResetsForUser(ctx context.Context, userID uuid.UUID) error

	Close()
}

type PostgresStorage struct {
	db     *pgxpool.Pool
	schema string
}

func NewPostgresStorage(dbURL, schema string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db:     conn,
		schema: schema,
	}, nil
}

func (p *PostgresStorage) table(name string) string {
	return p.schema + "." + name
}

const userColumns = "id, username, email, password_hash, first_name, last_name, phone, role, status, created_at, updated_at, last_login_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	)
	return user, err
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return ErrDuplicate
	}
	return err
}

func (p *PostgresStorage) CreateUser(ctx context.Context, nu NewUser) (uuid.UUID, error) {
	const op = "storage.CreateUser"

	var userID uuid.UUID
	query := fmt.Sprintf(`INSERT INTO %s(username, email, password_hash, first_name, last_name)
	VALUES ($1, $2, $3, $4, $5) RETURNING id;`, p.table(usersTable))

	err := p.db.QueryRow(ctx, query, nu.Username, nu.Email, nu.PasswordHash, nu.FirstName, nu.LastName).Scan(&userID)
	if err != nil {
		return userID, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return userID, nil
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "storage.GetUserByID"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id=$1;", userColumns, p.table(usersTable))

	user, err := scanUser(p.db.QueryRow(ctx, query, userID))
	if err != nil {
		return user, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByLogin(ctx context.Context, identifier string) (models.User, error) {
	const op = "storage.GetUserByLogin"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE username=$1 OR email=$1;", userColumns, p.table(usersTable))

	user, err := scanUser(p.db.QueryRow(ctx, query, identifier))
	if err != nil {
		return user, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return user, nil
}

func (p *PostgresStorage) UserExists(ctx context.Context, username, email string) (bool, error) {
	const op = "storage.UserExists"

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE username=$1 OR email=$2);", p.table(usersTable))

	if err := p.db.QueryRow(ctx, query, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (p *PostgresStorage) FindUserIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	const op = "storage.FindUserIDByEmail"

	var userID uuid.UUID
	query := fmt.Sprintf("SELECT id FROM %s WHERE email=$1;", p.table(usersTable))

	if err := p.db.QueryRow(ctx, query, email).Scan(&userID); err != nil {
		return userID, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return userID, nil
}

func (p *PostgresStorage) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.UpdateLastLogin"

	query := fmt.Sprintf("UPDATE %s SET last_login_at=now() WHERE id=$1;", p.table(usersTable))

	if _, err := p.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) UpdateProfile(ctx context.Context, userID uuid.UUID, upd models.ProfileUpdate) error {
	const op = "storage.UpdateProfile"

	query, args := buildProfileUpdate(p.table(usersTable), userID, upd)
	if query == "" {
		return nil
	}

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	const op = "storage.UpdatePassword"

	query := fmt.Sprintf("UPDATE %s SET password_hash=$1, updated_at=now() WHERE id=$2;", p.table(usersTable))

	tag, err := p.db.Exec(ctx, query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.DeleteUser"

	query := fmt.Sprintf("DELETE FROM %s WHERE id=$1;", p.table(usersTable))

	tag, err := p.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

func (p *PostgresStorage) ListUsers(ctx context.Context, params ListParams) (models.UserPage, error) {
	const op = "storage.ListUsers"

	params = params.Normalized()
	page := models.UserPage{Items: []models.User{}}

	countQuery, countArgs := buildCountQuery(p.table(usersTable), params)
	if err := p.db.QueryRow(ctx, countQuery, countArgs...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("%s (count): %w", op, err)
	}

	listQuery, listArgs := buildListQuery(p.table(usersTable), userColumns, params)
	rows, err := p.db.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return page, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return page, fmt.Errorf("%s: %w", op, err)
		}
		page.Items = append(page.Items, user)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("%s (rows): %w", op, err)
	}

	return page, nil
}

func (p *PostgresStorage) CreatePasswordReset(ctx context.Context, reset models.PasswordReset) error {
	const op = "storage.CreatePasswordReset"

	query := fmt.Sprintf(`INSERT INTO %s(id, user_id, token, expires_at)
	VALUES ($1, $2, $3, $4);`, p.table(passwordResetsTable))

	_, err := p.db.Exec(ctx, query, reset.ID, reset.UserID, reset.Token, reset.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}

	return nil
}

func (p *PostgresStorage) GetPasswordReset(ctx context.Context, token string) (models.PasswordReset, error) {
	const op = "storage.GetPasswordReset"

	var reset models.PasswordReset
	query := fmt.Sprintf(`SELECT id, user_id, token, expires_at
	FROM %s WHERE token=$1 AND expires_at > now();`, p.table(passwordResetsTable))

	err := p.db.QueryRow(ctx, query, token).Scan(&reset.ID, &reset.UserID, &reset.Token, &reset.ExpiresAt)
	if err != nil {
		return reset, fmt.Errorf("%s: %w", op, mapError(err))
	}

	return reset, nil
}

func (p *PostgresStorage) DeletePasswordResetsForUser(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.DeletePasswordResetsForUser"

	query := fmt.Sprintf("DELETE FROM %s WHERE user_id=$1;", p.table(passwordResetsTable))

	if _, err := p.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}
