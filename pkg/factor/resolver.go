// Package factor resolves complete selection paths to emission factors.
package factor

import (
	"context"
	"errors"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
	"github.com/greenledger/ghgstage/pkg/notify"
)

var ErrIncomplete = errors.New("selection path is incomplete")

// Resolver looks factors up on every call. Factors can be corrected on the
// server at any time, so nothing is cached here.
type Resolver struct {
	source   lookup.Factors
	notifier notify.Notifier
}

func NewResolver(source lookup.Factors, notifier notify.Notifier) *Resolver {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Resolver{source: source, notifier: notifier}
}

// Resolve returns the factor for path. Any failure, including "no factor for
// this path", comes back as a result with Available == false; a warning is
// raised unless the lookup was cancelled.
func (r *Resolver) Resolve(ctx context.Context, path ghg.Path) ghg.FactorResult {
	res, err := r.Lookup(ctx, path)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case lookup.IsNotAvailable(err):
			notify.Warn(r.notifier, err, "No emission factor available for %s", path)
		default:
			notify.Warn(r.notifier, err, "Emission factor lookup failed")
		}
	}
	return res
}

// Lookup is Resolve without notifications.
func (r *Resolver) Lookup(ctx context.Context, path ghg.Path) (ghg.FactorResult, error) {
	if !path.Complete() {
		return ghg.NotAvailableFor(path), ErrIncomplete
	}
	f, err := r.source.GetFactor(ctx, lookup.QueryFor(path))
	if err != nil {
		return ghg.NotAvailableFor(path), err
	}
	return ghg.FactorResult{
		Path:          path,
		Value:         f.Value,
		SubcategoryID: f.SubcategoryID,
		Available:     true,
	}, nil
}
