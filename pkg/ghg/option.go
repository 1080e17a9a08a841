package ghg

import "strings"

// NotApplicableLabel is how the lookup service spells the sentinel option.
const NotApplicableLabel = "N/A"

// Option is one selectable node of the hierarchy. Main categories carry a
// service id; deeper levels are identified by their name, so ID == Label.
//
// The sentinel that lets a level be skipped is NotApplicable == true. It is
// distinct from a real option whose label happens to be "N/A".
type Option struct {
	ID            string
	Label         string
	NotApplicable bool
}

// NotApplicable returns the sentinel option.
func NotApplicable() Option {
	return Option{Label: NotApplicableLabel, NotApplicable: true}
}

// Named builds an option identified by its name.
func Named(name string) Option { return Option{ID: name, Label: name} }

// IsZero reports whether nothing has been chosen.
func (o Option) IsZero() bool { return o == Option{} }

// Value is what gets sent to the lookup service for this choice.
func (o Option) Value() string {
	if o.NotApplicable {
		return NotApplicableLabel
	}
	return o.ID
}

func (o Option) String() string {
	if o.Label != "" {
		return o.Label
	}
	return o.ID
}

// Options is the option list of one level.
type Options []Option

// IsNotApplicable reports the auto-advance case: exactly one option, and it
// is the sentinel.
func (o Options) IsNotApplicable() bool {
	return len(o) == 1 && o[0].NotApplicable
}

// Find matches value against option ids first, then labels
// (case-insensitive). "N/A" only matches the sentinel when no real option
// claims it.
func (o Options) Find(value string) (Option, bool) {
	for _, opt := range o {
		if !opt.NotApplicable && opt.ID == value {
			return opt, true
		}
	}
	for _, opt := range o {
		if !opt.NotApplicable && strings.EqualFold(opt.Label, value) {
			return opt, true
		}
	}
	if strings.EqualFold(value, NotApplicableLabel) {
		for _, opt := range o {
			if opt.NotApplicable {
				return opt, true
			}
		}
	}
	return Option{}, false
}

// Labels returns the display names in order.
func (o Options) Labels() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.String()
	}
	return out
}
