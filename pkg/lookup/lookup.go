// Package lookup defines the boundary to the Emission Factor Lookup Service:
// the category hierarchy, the factor lookup and the per-project staged
// activity resource.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/greenledger/ghgstage/pkg/ghg"
)

// ErrNotAvailable is returned by GetFactor when the service has no factor
// for the requested path.
var ErrNotAvailable = errors.New("emission factor not available")

// Hierarchy lists the options of each level. Deeper levels are scoped by
// the main category id, which the service already scopes by scope and
// database.
type Hierarchy interface {
	ListMainCategories(ctx context.Context, scope ghg.Scope, db ghg.Database) ([]ghg.Option, error)
	ListSubCategories(ctx context.Context, mainCategoryID string) ([]ghg.Option, error)
	ListActivities(ctx context.Context, mainCategoryID, subCategory string) ([]ghg.Option, error)
	ListSelection1(ctx context.Context, mainCategoryID, subCategory, activity string) ([]ghg.Option, error)
	ListSelection2(ctx context.Context, mainCategoryID, subCategory, activity, selection1 string) ([]ghg.Option, error)
}

// Factors resolves a complete path to an emission factor.
type Factors interface {
	GetFactor(ctx context.Context, q FactorQuery) (Factor, error)
}

// StagedActivities is the per-project staging resource. Activities are keyed
// by subcategory id.
type StagedActivities interface {
	ListStagedActivities(ctx context.Context, projectID string, scope ghg.Scope) ([]StagedActivity, error)
	// AppendStagedActivity returns the server-assigned id, which may be empty.
	AppendStagedActivity(ctx context.Context, projectID, subcategoryID, frequency string) (string, error)
	UpdateStagedActivity(ctx context.Context, projectID, oldSubcategoryID, newSubcategoryID, frequency string) error
	DeleteStagedActivity(ctx context.Context, projectID, subcategoryID string) error
	CommitStagedChanges(ctx context.Context, projectID string) error
}

// Service is everything the data-collection flow needs from the backend.
type Service interface {
	Hierarchy
	Factors
	StagedActivities
}

// FactorQuery is the wire form of a complete path.
type FactorQuery struct {
	Database       ghg.Database
	Scope          ghg.Scope
	MainCategoryID string
	SubCategory    string
	Activity       string
	Selection1     string
	Selection2     string
}

// QueryFor flattens path. Sentinel choices are sent as "N/A".
func QueryFor(path ghg.Path) FactorQuery {
	return FactorQuery{
		Database:       path.Database,
		Scope:          path.Scope,
		MainCategoryID: path.MainCategory().Value(),
		SubCategory:    path.SubCategory().Value(),
		Activity:       path.Activity().Value(),
		Selection1:     path.Selection1().Value(),
		Selection2:     path.Selection2().Value(),
	}
}

type Factor struct {
	Value         decimal.Decimal
	SubcategoryID string
}

// StagedActivity is the server's view of one staged row.
type StagedActivity struct {
	ID             string
	SubcategoryID  string
	Frequency      string
	Scope          ghg.Scope
	Database       ghg.Database
	MainCategoryID string
	MainCategory   string
	SubCategory    string
	Activity       string
	Selection1     string
	Selection2     string
	EmissionFactor decimal.Decimal
}

// ListChildren dispatches to the Hierarchy call that lists level under path.
func ListChildren(ctx context.Context, h Hierarchy, level ghg.Level, path ghg.Path) ([]ghg.Option, error) {
	if !path.Ready(level) {
		return nil, fmt.Errorf("cannot list %s: ancestors of %s not chosen", level, path)
	}
	main := path.MainCategory().Value()
	sub := path.SubCategory().Value()
	act := path.Activity().Value()
	switch level {
	case ghg.LevelMainCategory:
		return h.ListMainCategories(ctx, path.Scope, path.Database)
	case ghg.LevelSubCategory:
		return h.ListSubCategories(ctx, main)
	case ghg.LevelActivity:
		return h.ListActivities(ctx, main, sub)
	case ghg.LevelSelection1:
		return h.ListSelection1(ctx, main, sub, act)
	case ghg.LevelSelection2:
		return h.ListSelection2(ctx, main, sub, act, path.Selection1().Value())
	default:
		return nil, fmt.Errorf("unknown level %d", int(level))
	}
}
