package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

// SecurityEventRepository appends security events to an insert-only table.
type SecurityEventRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	table   string
}

// NewSecurityEventRepository constructs the repository in schema.
func NewSecurityEventRepository(exec pgExecutor, schema string) *SecurityEventRepository {
	return &SecurityEventRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		table:   qualify(schema, "security_events"),
	}
}

// Log implements port.AuditSink.
func (r *SecurityEventRepository) Log(ctx context.Context, event domain.SecurityEvent) error {
	var details any
	if len(event.Details) > 0 {
		payload, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode event details: %w", err)
		}
		details = payload
	}

	stmt, args, err := r.builder.Insert(r.table).
		Columns("id", "occurred_at", "kind", "subject", "user_id", "ip_address", "details").
		Values(
			event.ID,
			event.OccurredAt.UTC(),
			string(event.Kind),
			event.Subject,
			event.UserID,
			event.IPAddress,
			details,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return translate("insert security event", err)
	}
	return nil
}

// ListBySubject returns the newest events for subject, newest first.
func (r *SecurityEventRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]domain.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	stmt, args, err := r.builder.
		Select("id", "occurred_at", "kind", "subject", "user_id", "ip_address", "details").
		From(r.table).
		Where(squirrel.Eq{"subject": subject}).
		OrderBy("occurred_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list security events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, translate("list security events", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var (
			event      domain.SecurityEvent
			kind       string
			occurredAt time.Time
			userID     sql.NullString
			ip         sql.NullString
			details    []byte
		)
		if err := rows.Scan(&event.ID, &occurredAt, &kind, &event.Subject, &userID, &ip, &details); err != nil {
			return nil, translate("scan security event", err)
		}
		event.Kind = domain.EventKind(kind)
		event.OccurredAt = occurredAt.UTC()
		event.UserID = nullableStringPtr(userID)
		event.IPAddress = nullableStringPtr(ip)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode event details: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate security events", err)
	}
	return events, nil
}

var _ port.AuditSink = (*SecurityEventRepository)(nil)
