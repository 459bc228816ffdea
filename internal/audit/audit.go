// Package audit appends access and mutation events to a record's
// compliance history.
package audit

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/model"
)

// Actions recorded in access history.
const (
	ActionCreated = "created"
	ActionViewed  = "viewed"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Trail appends events to record access histories. The history is
// append-only; retention is a deployment decision outside the core.
type Trail struct {
	log *zap.Logger
	now func() time.Time
}

// New constructs a Trail.
func New(log *zap.Logger) *Trail {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trail{log: log, now: time.Now}
}

// Record appends one event to rec's access history and refreshes
// LastAccessed. Only event metadata is logged, never record content.
func (t *Trail) Record(rec *model.MedicalRecord, accountID uuid.UUID, action string) {
	at := t.now().UTC()
	rec.HIPAA.AccessHistory = append(rec.HIPAA.AccessHistory, model.AccessEvent{
		Timestamp: at,
		Action:    action,
		UserID:    accountID.String(),
	})
	rec.HIPAA.LastAccessed = at
	t.log.Info("audit",
		zap.String("record", rec.ID.String()),
		zap.String("account", accountID.String()),
		zap.String("action", action),
	)
}

// Event notes an action that has no surviving record to append to,
// such as a completed delete.
func (t *Trail) Event(accountID, recordID uuid.UUID, action string) {
	t.log.Info("audit",
		zap.String("record", recordID.String()),
		zap.String("account", accountID.String()),
		zap.String("action", action),
	)
}
