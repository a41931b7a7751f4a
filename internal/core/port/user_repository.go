package port

import (
	"context"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

// NewUser carries the attributes set when a user row is created. An empty
// PasswordHash stores an unusable password.
type NewUser struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
}

// UserFieldUpdate lists the columns a flow may change. Nil fields are left untouched.
type UserFieldUpdate struct {
	IsActive     *bool
	PasswordHash *string
	LastLoginAt  *time.Time
}

// Empty reports whether the update carries no field.
func (u UserFieldUpdate) Empty() bool {
	return u.IsActive == nil && u.PasswordHash == nil && u.LastLoginAt == nil
}

// UserRepository exposes persistence behavior for users and their social bindings.
// Email lookups compare case-insensitively.
type UserRepository interface {
	Create(ctx context.Context, user NewUser) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error)
	UpdateFields(ctx context.Context, id string, fields UserFieldUpdate) error

	GetSocialBinding(ctx context.Context, provider, providerUID string) (*domain.SocialBinding, error)
	CreateSocialBinding(ctx context.Context, binding domain.SocialBinding) error
	ListSocialBindings(ctx context.Context, userID, provider string) ([]domain.SocialBinding, error)

	// InTx runs fn against a repository bound to a single transaction.
	InTx(ctx context.Context, fn func(UserRepository) error) error
}
