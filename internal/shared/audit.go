package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one row of the posting audit trail. Journal postings and
// reversals, member registration, and integrity-scan drift findings all
// record through it.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends rows to audit_logs. The table is append-only;
// nothing in the service updates or deletes audit rows.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger constructs the logger over the shared pool.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record appends one row. Incomplete records are rejected rather than
// stored with blanks; a zero At is stamped with the current time.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return fmt.Errorf("audit: incomplete record action=%q entity=%q", log.Action, log.Entity)
	}
	if l == nil || l.pool == nil {
		return errors.New("audit: logger not configured")
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	var meta []byte
	if len(log.Meta) > 0 {
		var err error
		meta, err = json.Marshal(log.Meta)
		if err != nil {
			return fmt.Errorf("audit: encode meta: %w", err)
		}
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ActorID, log.Action, log.Entity, log.EntityID, meta, log.At)
	return err
}
