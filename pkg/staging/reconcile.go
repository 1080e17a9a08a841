package staging

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
	"github.com/greenledger/ghgstage/pkg/notify"
)

// SwitchScope makes scope active and reconciles its rows with the service.
// Rows the service does not know about are kept.
func (b *Buffer) SwitchScope(ctx context.Context, scope ghg.Scope) error {
	if !scope.Valid() {
		return fmt.Errorf("invalid scope %d", int(scope))
	}
	b.mu.Lock()
	b.active = scope
	b.mu.Unlock()
	return b.reconcile(ctx, scope)
}

// Refresh reconciles every scope concurrently.
func (b *Buffer) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, scope := range ghg.AllScopes {
		g.Go(func() error { return b.reconcile(ctx, scope) })
	}
	return g.Wait()
}

func (b *Buffer) reconcile(ctx context.Context, scope ghg.Scope) error {
	if b.sess.ProjectID == "" {
		return nil
	}
	server, err := b.remote.ListStagedActivities(ctx, b.sess.ProjectID, scope)
	if err != nil {
		notify.Warn(b.notifier, err, "Could not refresh %s from the server; showing local rows", scope)
		return fmt.Errorf("list %s: %w: %w", scope, ErrRemote, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[scope] = merge(b.rows[scope], dedupe(server), b.newID)
	return nil
}

// dedupe drops repeated server ids, keeping the first.
func dedupe(list []lookup.StagedActivity) []lookup.StagedActivity {
	seen := make(map[string]bool, len(list))
	out := list[:0:0]
	for _, a := range list {
		if a.ID != "" {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
		}
		out = append(out, a)
	}
	return out
}

// merge folds the server's rows of one scope into the local ones.
//
// A server row matches the local row with its server id, or failing that an
// unmatched synced local row holding its subcategory. Matched rows take the
// server's fields unless they are mid-edit. Unmatched server rows are
// appended. Local rows the service never held are kept in place; synced
// rows the service no longer has are dropped, unless mid-edit, in which
// case they become local-only.
func merge(local []Row, server []lookup.StagedActivity, newID func() string) []Row {
	out := make([]Row, len(local))
	copy(out, local)
	matched := make([]bool, len(out))

	var added []Row
	for _, a := range server {
		i := matchRow(out, matched, a)
		if i < 0 {
			added = append(added, rowFromActivity(newID(), a))
			continue
		}
		matched[i] = true
		if out[i].Resolved {
			out[i].updateFrom(a)
		}
	}

	kept := out[:0]
	for i, r := range out {
		if r.Synced() && !matched[i] {
			if r.Resolved {
				continue
			}
			r.ServerID = ""
			r.RemoteSubcategoryID = ""
		}
		kept = append(kept, r)
	}
	return append(kept, added...)
}

func matchRow(rows []Row, matched []bool, a lookup.StagedActivity) int {
	if a.ID != "" {
		for i, r := range rows {
			if !matched[i] && r.ServerID == a.ID {
				return i
			}
		}
	}
	for i, r := range rows {
		if !matched[i] && r.Synced() && r.RemoteSubcategoryID == a.SubcategoryID {
			return i
		}
	}
	return -1
}
