// Package staging holds the rows a user has confirmed but not yet committed
// to a project, and keeps them in step with the lookup service's staged
// activity resource.
//
// Local mutations happen first and the matching remote call follows. When
// that call fails the user is notified; Confirm keeps the row for a later
// push, Edit and Remove put the previous state back.
package staging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
	"github.com/greenledger/ghgstage/pkg/notify"
	"github.com/greenledger/ghgstage/pkg/session"
)

var (
	ErrRowNotFound   = errors.New("staged row not found")
	ErrRemote        = errors.New("lookup service rejected the change")
	ErrUnresolved    = errors.New("row has no emission factor for its current path")
	ErrNotAvailable  = errors.New("emission factor not available")
	ErrScopeMismatch = errors.New("factor belongs to another scope")
)

// Buffer is the scope-keyed ledger of staged rows for one session.
type Buffer struct {
	sess     session.Session
	remote   lookup.StagedActivities
	notifier notify.Notifier
	newID    func() string

	mu     sync.Mutex
	active ghg.Scope
	rows   map[ghg.Scope][]Row
}

type Option func(*Buffer)

// WithRows seeds the ledger, e.g. from local storage.
func WithRows(rows []Row) Option {
	return func(b *Buffer) {
		for _, r := range rows {
			b.rows[r.Scope] = append(b.rows[r.Scope], r)
		}
	}
}

// WithIDGenerator replaces the uuid row ids.
func WithIDGenerator(fn func() string) Option {
	return func(b *Buffer) { b.newID = fn }
}

func New(sess session.Session, remote lookup.StagedActivities, notifier notify.Notifier, opts ...Option) *Buffer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	b := &Buffer{
		sess:     sess,
		remote:   remote,
		notifier: notifier,
		newID:    uuid.NewString,
		active:   ghg.Scope1,
		rows:     make(map[ghg.Scope][]Row),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Confirm stages res as a new row of its scope and mirrors it remotely. The
// row is kept even when the remote append fails; the returned error then
// wraps ErrRemote and Commit pushes the row again.
func (b *Buffer) Confirm(ctx context.Context, res ghg.FactorResult, unit, frequency string) (Row, error) {
	if err := b.sess.RequireEditor(); err != nil {
		return Row{}, err
	}
	if !res.Available || !res.Path.Complete() {
		return Row{}, ErrNotAvailable
	}

	row := Row{
		ID:        b.newID(),
		Unit:      ghg.NormalizeUnit(unit),
		Frequency: ghg.NormalizeFrequency(frequency),
	}
	row.applyResult(res)

	b.mu.Lock()
	b.rows[row.Scope] = append(b.rows[row.Scope], row)
	b.mu.Unlock()

	serverID, err := b.remote.AppendStagedActivity(ctx, b.sess.ProjectID, row.SubcategoryID, row.Frequency)
	if err != nil {
		notify.Error(b.notifier, err, "Could not stage %s on the server; it will be retried on commit", row.Activity)
		return row, fmt.Errorf("append %s: %w: %w", row.SubcategoryID, ErrRemote, err)
	}
	return b.markSynced(row.ID, row.SubcategoryID, serverID), nil
}

// markSynced records that the service holds subcategoryID for row id.
func (b *Buffer) markSynced(id, subcategoryID, serverID string) Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope, i, ok := b.find(id)
	if !ok {
		return Row{}
	}
	r := &b.rows[scope][i]
	r.RemoteSubcategoryID = subcategoryID
	if serverID != "" {
		r.ServerID = serverID
	}
	return *r
}

// LevelChange re-chooses one level of a row's path.
type LevelChange struct {
	Level  ghg.Level
	Option ghg.Option
}

// Patch is a partial update of a row. Nil fields are left alone.
type Patch struct {
	Unit      *string
	Frequency *string
	// Level clears the levels below it and leaves the row unresolved.
	Level *LevelChange
	// Factor re-resolves the row to the factor's path.
	Factor *ghg.FactorResult
}

// Edit applies p to row id. A resolved row whose subcategory or frequency
// changed is saved remotely: an update swapping the old subcategory for the
// new one when the service holds the row, an append otherwise.
//
// When an update fails the fields the service holds are restored; unit stays
// as edited. A failed append keeps the edit and leaves the row pending for
// Commit, like Confirm does.
func (b *Buffer) Edit(ctx context.Context, id string, p Patch) (Row, error) {
	if err := b.sess.RequireEditor(); err != nil {
		return Row{}, err
	}

	b.mu.Lock()
	scope, i, ok := b.find(id)
	if !ok {
		b.mu.Unlock()
		return Row{}, fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	prev := b.rows[scope][i]
	next, err := applyPatch(prev, p)
	if err != nil {
		b.mu.Unlock()
		return prev, err
	}
	b.rows[scope][i] = next
	b.mu.Unlock()

	if !next.Resolved || (next.SubcategoryID == prev.SubcategoryID && next.Frequency == prev.Frequency) {
		return next, nil
	}

	if !prev.Synced() {
		serverID, err := b.remote.AppendStagedActivity(ctx, b.sess.ProjectID, next.SubcategoryID, next.Frequency)
		if err != nil {
			notify.Error(b.notifier, err, "Could not stage %s on the server; it will be retried on commit", next.Activity)
			return next, fmt.Errorf("append %s: %w: %w", id, ErrRemote, err)
		}
		return b.markSynced(id, next.SubcategoryID, serverID), nil
	}

	if err := b.remote.UpdateStagedActivity(ctx, b.sess.ProjectID, prev.RemoteSubcategoryID, next.SubcategoryID, next.Frequency); err != nil {
		restored := prev
		restored.Unit = next.Unit
		b.restore(restored, i)
		notify.Error(b.notifier, err, "Could not save changes to %s; reverted", prev.Activity)
		return restored, fmt.Errorf("update %s: %w: %w", id, ErrRemote, err)
	}
	return b.markSynced(id, next.SubcategoryID, ""), nil
}

func applyPatch(r Row, p Patch) (Row, error) {
	if p.Unit != nil {
		r.Unit = ghg.NormalizeUnit(*p.Unit)
	}
	if p.Frequency != nil {
		r.Frequency = ghg.NormalizeFrequency(*p.Frequency)
	}
	if p.Level != nil {
		path := r.Path()
		if !path.Ready(p.Level.Level) {
			return r, fmt.Errorf("cannot change %s before its parents are chosen", p.Level.Level)
		}
		r.setPath(path.Set(p.Level.Level, p.Level.Option))
		r.EmissionFactor = decimal.Zero
		r.SubcategoryID = ""
		r.Resolved = false
	}
	if p.Factor != nil {
		if !p.Factor.Available {
			return r, ErrNotAvailable
		}
		if p.Factor.Path.Scope != r.Scope {
			return r, fmt.Errorf("%w: %s", ErrScopeMismatch, p.Factor.Path.Scope)
		}
		r.applyResult(*p.Factor)
	}
	return r, nil
}

// restore puts prev back at index i of its scope, replacing the row with the
// same id or reinserting it if it has gone.
func (b *Buffer) restore(prev Row, i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if scope, j, ok := b.find(prev.ID); ok {
		b.rows[scope][j] = prev
		return
	}
	rows := b.rows[prev.Scope]
	if i > len(rows) {
		i = len(rows)
	}
	rows = append(rows, Row{})
	copy(rows[i+1:], rows[i:])
	rows[i] = prev
	b.rows[prev.Scope] = rows
}

// Remove drops row id and deletes it remotely if the service holds it. On
// remote failure the row is put back where it was.
func (b *Buffer) Remove(ctx context.Context, id string) error {
	if err := b.sess.RequireEditor(); err != nil {
		return err
	}

	b.mu.Lock()
	scope, i, ok := b.find(id)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	row := b.rows[scope][i]
	b.rows[scope] = append(b.rows[scope][:i:i], b.rows[scope][i+1:]...)
	b.mu.Unlock()

	if !row.Synced() {
		return nil
	}
	if err := b.remote.DeleteStagedActivity(ctx, b.sess.ProjectID, row.RemoteSubcategoryID); err != nil {
		b.restore(row, i)
		notify.Error(b.notifier, err, "Could not delete %s on the server; restored", row.Activity)
		return fmt.Errorf("delete %s: %w: %w", id, ErrRemote, err)
	}
	return nil
}

// Duplicate clones each row right after its source. Clones get a new id and
// a "(Copy)" activity; they are local until confirmed by a commit.
func (b *Buffer) Duplicate(ids ...string) ([]Row, error) {
	if err := b.sess.RequireEditor(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if _, _, ok := b.find(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrRowNotFound, id)
		}
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		scope, i, _ := b.find(id)
		clone := b.rows[scope][i]
		clone.ID = b.newID()
		clone.Activity += CopySuffix
		clone.ServerID = ""
		clone.RemoteSubcategoryID = ""

		rows := append(b.rows[scope], Row{})
		copy(rows[i+2:], rows[i+1:])
		rows[i+1] = clone
		b.rows[scope] = rows
		out = append(out, clone)
	}
	return out, nil
}

// find locates row id. Callers hold b.mu.
func (b *Buffer) find(id string) (ghg.Scope, int, bool) {
	for scope, rows := range b.rows {
		for i := range rows {
			if rows[i].ID == id {
				return scope, i, true
			}
		}
	}
	return 0, 0, false
}

// Row returns a copy of row id.
func (b *Buffer) Row(id string) (Row, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope, i, ok := b.find(id)
	if !ok {
		return Row{}, false
	}
	return b.rows[scope][i], true
}

// Rows returns a copy of the rows of scope, in order.
func (b *Buffer) Rows(scope ghg.Scope) []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Row(nil), b.rows[scope]...)
}

// All returns every row, scope by scope.
func (b *Buffer) All() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Row
	for _, s := range ghg.AllScopes {
		out = append(out, b.rows[s]...)
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, rows := range b.rows {
		n += len(rows)
	}
	return n
}

// Active is the scope the user is working in.
func (b *Buffer) Active() ghg.Scope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Buffer) Session() session.Session { return b.sess }
