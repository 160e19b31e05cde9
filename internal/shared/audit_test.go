package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditRecordRejectsIncomplete(t *testing.T) {
	var l *AuditLogger

	err := l.Record(context.Background(), AuditLog{Action: "journal.post", Entity: "journal_entry"})
	require.ErrorContains(t, err, "incomplete record")

	err = l.Record(context.Background(), AuditLog{Entity: "journal_entry", EntityID: "1"})
	require.ErrorContains(t, err, "incomplete record")
}

func TestAuditRecordRequiresPool(t *testing.T) {
	l := &AuditLogger{}
	err := l.Record(context.Background(), AuditLog{Action: "journal.post", Entity: "journal_entry", EntityID: "1"})
	require.ErrorContains(t, err, "not configured")
}
