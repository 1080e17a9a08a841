package staging

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
)

// CopySuffix marks a duplicated row's activity label.
const CopySuffix = " (Copy)"

// Row is one staged line item.
//
// ID is minted locally and never changes. ServerID and RemoteSubcategoryID
// describe what the lookup service holds for the row; both are empty until
// the service acknowledges it. Resolved is false while a path edit awaits a
// new factor.
type Row struct {
	ID       string
	ServerID string

	Scope          ghg.Scope
	Database       ghg.Database
	MainCategoryID string
	MainCategory   string
	SubCategory    string
	Activity       string
	Selection1     string
	Selection2     string

	Unit           string
	Frequency      string
	EmissionFactor decimal.Decimal
	SubcategoryID  string

	RemoteSubcategoryID string
	Resolved            bool
}

// Synced reports whether the lookup service holds this row.
func (r Row) Synced() bool { return r.RemoteSubcategoryID != "" }

// Pending reports whether the service is behind the local row.
func (r Row) Pending() bool {
	return !r.Resolved || r.RemoteSubcategoryID != r.SubcategoryID
}

// Path rebuilds the selection path of the row. Copy suffixes are dropped
// from the activity and "N/A" choices become the sentinel.
func (r Row) Path() ghg.Path {
	activity := r.Activity
	for strings.HasSuffix(activity, CopySuffix) {
		activity = strings.TrimSuffix(activity, CopySuffix)
	}
	p := ghg.NewPath(r.Scope, r.Database)
	choices := []ghg.Option{
		{ID: r.MainCategoryID, Label: r.MainCategory},
		choice(r.SubCategory),
		choice(activity),
		choice(r.Selection1),
		choice(r.Selection2),
	}
	for i, c := range choices {
		if c.IsZero() || c.ID == "" && !c.NotApplicable {
			break
		}
		p = p.Set(ghg.Level(i), c)
	}
	return p
}

func choice(v string) ghg.Option {
	switch v {
	case "":
		return ghg.Option{}
	case ghg.NotApplicableLabel:
		return ghg.NotApplicable()
	default:
		return ghg.Named(v)
	}
}

// setPath overwrites the path fields, leaving unchosen levels empty.
func (r *Row) setPath(p ghg.Path) {
	r.Scope = p.Scope
	r.Database = p.Database
	main := p.MainCategory()
	r.MainCategoryID = main.ID
	r.MainCategory = main.Label
	r.SubCategory = value(p.SubCategory())
	r.Activity = value(p.Activity())
	r.Selection1 = value(p.Selection1())
	r.Selection2 = value(p.Selection2())
}

func value(o ghg.Option) string {
	if o.IsZero() {
		return ""
	}
	return o.Value()
}

// applyResult makes r describe res.
func (r *Row) applyResult(res ghg.FactorResult) {
	r.setPath(res.Path)
	r.EmissionFactor = res.Value
	r.SubcategoryID = res.SubcategoryID
	r.Resolved = true
}

// rowFromActivity builds a synced row from the service's copy.
func rowFromActivity(id string, a lookup.StagedActivity) Row {
	r := Row{ID: id}
	r.updateFrom(a)
	return r
}

// updateFrom takes every field the service knows about from a. Unit is
// local-only and left alone.
func (r *Row) updateFrom(a lookup.StagedActivity) {
	r.ServerID = a.ID
	r.Scope = a.Scope
	r.Database = a.Database
	r.MainCategoryID = a.MainCategoryID
	r.MainCategory = a.MainCategory
	r.SubCategory = a.SubCategory
	r.Activity = a.Activity
	r.Selection1 = a.Selection1
	r.Selection2 = a.Selection2
	r.Frequency = a.Frequency
	r.EmissionFactor = a.EmissionFactor
	r.SubcategoryID = a.SubcategoryID
	r.RemoteSubcategoryID = a.SubcategoryID
	r.Resolved = true
}
