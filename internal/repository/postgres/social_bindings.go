package postgres

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

var bindingColumns = []string{"id", "provider", "provider_uid", "user_id", "created_at"}

// GetSocialBinding looks up the binding for (provider, providerUID).
func (r *UserRepository) GetSocialBinding(ctx context.Context, provider, providerUID string) (*domain.SocialBinding, error) {
	stmt, args, err := r.builder.
		Select(bindingColumns...).
		From(r.bindings).
		Where(squirrel.Eq{"provider": strings.ToLower(provider), "provider_uid": providerUID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select social binding sql: %w", err)
	}

	var binding domain.SocialBinding
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&binding.ID,
		&binding.Provider,
		&binding.ProviderUID,
		&binding.UserID,
		&binding.CreatedAt,
	); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, translate("scan social binding", err)
	}
	return &binding, nil
}

// CreateSocialBinding inserts a binding. The (provider, provider_uid) unique
// index turns a duplicate into repository.ErrConflict.
func (r *UserRepository) CreateSocialBinding(ctx context.Context, binding domain.SocialBinding) error {
	stmt, args, err := r.builder.Insert(r.bindings).
		Columns(bindingColumns...).
		Values(
			binding.ID,
			strings.ToLower(binding.Provider),
			binding.ProviderUID,
			binding.UserID,
			binding.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert social binding sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return translate("insert social binding", err)
	}
	return nil
}

// ListSocialBindings returns the user's bindings for provider.
func (r *UserRepository) ListSocialBindings(ctx context.Context, userID, provider string) ([]domain.SocialBinding, error) {
	stmt, args, err := r.builder.
		Select(bindingColumns...).
		From(r.bindings).
		Where(squirrel.Eq{"user_id": userID, "provider": strings.ToLower(provider)}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list social bindings sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, translate("list social bindings", err)
	}
	defer rows.Close()

	var bindings []domain.SocialBinding
	for rows.Next() {
		var b domain.SocialBinding
		if err := rows.Scan(&b.ID, &b.Provider, &b.ProviderUID, &b.UserID, &b.CreatedAt); err != nil {
			return nil, translate("scan social binding", err)
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate social bindings", err)
	}
	return bindings, nil
}
