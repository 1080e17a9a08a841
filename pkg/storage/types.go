package storage

import (
	"time"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/staging"
)

type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeUpdated   ChangeType = "updated"
	ChangeRemoved   ChangeType = "removed"
	ChangeCommitted ChangeType = "committed"
)

// Change captures a single change event for auditing or printing.
type Change struct {
	OccurredAt time.Time
	ProjectID  string
	Scope      ghg.Scope
	RowID      string
	Activity   string
	ChangeType ChangeType
}

func newChange(at time.Time, projectID string, scope ghg.Scope, r staging.Row, t ChangeType) Change {
	return Change{
		OccurredAt: at,
		ProjectID:  projectID,
		Scope:      scope,
		RowID:      r.ID,
		Activity:   r.Activity,
		ChangeType: t,
	}
}

type ProjectStats struct {
	ProjectID    string
	Scope        ghg.Scope
	RowCount     int
	PendingCount int
}
