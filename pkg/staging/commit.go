package staging

import (
	"context"
	"fmt"

	"github.com/greenledger/ghgstage/pkg/notify"
)

// Commit finalizes the session project's staged rows. Rows the service does
// not hold yet are pushed first; an unresolved row stops the commit. On any
// failure the ledger is left as it is and Commit may be retried.
func (b *Buffer) Commit(ctx context.Context) (int, error) {
	if err := b.sess.RequireEditor(); err != nil {
		return 0, err
	}

	rows := b.All()
	var push []Row
	for _, r := range rows {
		if !r.Resolved {
			err := fmt.Errorf("%w: %s (%s)", ErrUnresolved, r.Activity, r.ID)
			notify.Error(b.notifier, err, "Finish or remove %s before committing", r.Activity)
			return 0, err
		}
		if r.Pending() {
			push = append(push, r)
		}
	}

	for _, r := range push {
		var (
			serverID string
			err      error
		)
		if r.Synced() {
			err = b.remote.UpdateStagedActivity(ctx, b.sess.ProjectID, r.RemoteSubcategoryID, r.SubcategoryID, r.Frequency)
		} else {
			serverID, err = b.remote.AppendStagedActivity(ctx, b.sess.ProjectID, r.SubcategoryID, r.Frequency)
		}
		if err != nil {
			notify.Error(b.notifier, err, "Commit failed while saving %s", r.Activity)
			return 0, fmt.Errorf("push %s: %w: %w", r.ID, ErrRemote, err)
		}
		b.markSynced(r.ID, r.SubcategoryID, serverID)
	}

	if err := b.remote.CommitStagedChanges(ctx, b.sess.ProjectID); err != nil {
		notify.Error(b.notifier, err, "Commit to project %s failed", b.sess.ProjectID)
		return 0, fmt.Errorf("commit %s: %w: %w", b.sess.ProjectID, ErrRemote, err)
	}

	b.mu.Lock()
	n := 0
	for scope, rs := range b.rows {
		n += len(rs)
		delete(b.rows, scope)
	}
	b.mu.Unlock()
	notify.Info(b.notifier, "Committed %d rows to project %s", n, b.sess.ProjectID)
	return n, nil
}
