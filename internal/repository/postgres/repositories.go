package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users          *UserRepository
	SecurityEvents *SecurityEventRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, schema string) *Repositories {
	return &Repositories{
		Users:          NewUserRepository(pool, schema),
		SecurityEvents: NewSecurityEventRepository(pool, schema),
	}
}
