package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"first_name",
	"last_name",
	"password_hash",
	"is_active",
	"is_staff",
	"is_superuser",
	"created_at",
	"last_login_at",
}

// UserRepository implements port.UserRepository using PostgreSQL. Rows are read
// on every call; nothing is cached between calls.
type UserRepository struct {
	db       pgBeginner
	exec     pgExecutor
	builder  squirrel.StatementBuilderType
	users    string
	bindings string
	now      func() time.Time
}

// NewUserRepository wires a PostgreSQL-backed user repository in schema.
func NewUserRepository(db pgBeginner, schema string) *UserRepository {
	return &UserRepository{
		db:       db,
		exec:     db,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		users:    qualify(schema, "users"),
		bindings: qualify(schema, "social_bindings"),
		now:      time.Now,
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	clone := *r
	clone.exec = tx
	clone.db = nil
	return &clone
}

// InTx runs fn inside a transaction. Nested calls reuse the open transaction.
func (r *UserRepository) InTx(ctx context.Context, fn func(port.UserRepository) error) (err error) {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return translate("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(r.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return translate("commit transaction", err)
	}
	return nil
}

// Create inserts a new user row. Unique violations on username or email map to
// repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, in port.NewUser) (*domain.User, error) {
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(in.Username),
		Email:        domain.NormalizeEmail(in.Email),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: in.PasswordHash,
		IsActive:     in.IsActive,
		CreatedAt:    r.now().UTC(),
	}

	var hashValue any
	if user.PasswordHash != "" {
		hashValue = user.PasswordHash
	}

	stmt, args, err := r.builder.Insert(r.users).
		Columns(
			"id",
			"username",
			"email",
			"first_name",
			"last_name",
			"password_hash",
			"is_active",
			"is_staff",
			"is_superuser",
			"created_at",
		).
		Values(
			user.ID,
			user.Username,
			user.Email,
			user.FirstName,
			user.LastName,
			hashValue,
			user.IsActive,
			false,
			false,
			user.CreatedAt,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return nil, translate("insert user", err)
	}
	return &user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "user by id", squirrel.Eq{"id": id})
}

// GetByEmail compares emails case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "user by email", squirrel.Expr("lower(email) = ?", domain.NormalizeEmail(email)))
}

// GetByUsername compares usernames case-insensitively.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, "user by username", squirrel.Expr("lower(username) = ?", domain.NormalizeIdentifier(username)))
}

// GetByUsernameOrEmail prefers a username match over an email match.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error) {
	id := domain.NormalizeIdentifier(identifier)
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(r.users).
		Where(squirrel.Or{
			squirrel.Expr("lower(username) = ?", id),
			squirrel.Expr("lower(email) = ?", id),
		}).
		OrderByClause("CASE WHEN lower(username) = ? THEN 0 ELSE 1 END", id).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by identifier sql: %w", err)
	}
	return r.scanOne(ctx, "user by identifier", stmt, args)
}

// UpdateFields writes only the fields set in fields.
func (r *UserRepository) UpdateFields(ctx context.Context, id string, fields port.UserFieldUpdate) error {
	if fields.Empty() {
		return nil
	}

	query := r.builder.Update(r.users).Where(squirrel.Eq{"id": id})
	if fields.IsActive != nil {
		query = query.Set("is_active", *fields.IsActive)
	}
	if fields.PasswordHash != nil {
		query = query.Set("password_hash", *fields.PasswordHash)
	}
	if fields.LastLoginAt != nil {
		query = query.Set("last_login_at", fields.LastLoginAt.UTC())
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return translate("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, op string, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(r.users).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s sql: %w", op, err)
	}
	return r.scanOne(ctx, op, stmt, args)
}

func (r *UserRepository) scanOne(ctx context.Context, op, stmt string, args []any) (*domain.User, error) {
	var (
		user      domain.User
		hash      sql.NullString
		lastLogin sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&hash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.CreatedAt,
		&lastLogin,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, translate("scan "+op, err)
	}

	if hash.Valid {
		user.PasswordHash = hash.String
	}
	user.LastLoginAt = nullableTimePtr(lastLogin)
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
