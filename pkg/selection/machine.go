// Package selection walks the emission factor hierarchy one level at a time.
//
// A Machine holds the current path, the option list of every open level and
// the last resolved factor. Choosing a level clears everything below it in
// one step, then loads the next level. Levels whose only option is the Not
// Applicable sentinel are filled in automatically.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/greenledger/ghgstage/pkg/ghg"
)

var (
	ErrLevelNotReady = errors.New("parent levels not chosen")
	ErrUnknownOption = errors.New("not one of the level's options")
	ErrIncomplete    = errors.New("selection is incomplete")
	ErrNotReady      = errors.New("options are still loading")
	ErrStale         = errors.New("selection changed while the request was in flight")
)

// OptionSource lists the options of a level. hierarchy.Cache implements it.
type OptionSource interface {
	Children(ctx context.Context, level ghg.Level, path ghg.Path) ghg.Options
}

// FactorSource resolves a complete path. factor.Resolver implements it.
type FactorSource interface {
	Resolve(ctx context.Context, path ghg.Path) ghg.FactorResult
}

type State int

const (
	StateEmpty State = iota
	StateMainCategoryChosen
	StateSubCategoryChosen
	StateActivityChosen
	StateSelection1Chosen
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateMainCategoryChosen:
		return "MainCategoryChosen"
	case StateSubCategoryChosen:
		return "SubCategoryChosen"
	case StateActivityChosen:
		return "ActivityChosen"
	case StateSelection1Chosen:
		return "Selection1Chosen"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Machine struct {
	options OptionSource
	factors FactorSource

	mu          sync.Mutex
	path        ghg.Path
	levels      [ghg.LevelCount]ghg.Options
	loading     [ghg.LevelCount]bool
	calculating bool
	result      *ghg.FactorResult

	// gen is bumped by every transition. Work started under an older
	// generation must not write its outcome back.
	gen        uint64
	cancel     context.CancelFunc
	cancelCalc context.CancelFunc
}

func New(scope ghg.Scope, db ghg.Database, options OptionSource, factors FactorSource) *Machine {
	return &Machine{
		options: options,
		factors: factors,
		path:    ghg.NewPath(scope, db),
	}
}

// Load resets the walk and fetches the main categories.
func (m *Machine) Load(ctx context.Context) error {
	m.mu.Lock()
	ctx, gen := m.transition(ctx, ghg.NewPath(m.path.Scope, m.path.Database), ghg.LevelMainCategory)
	m.mu.Unlock()
	return m.advance(ctx, gen, ghg.LevelMainCategory)
}

// Select chooses value at level, matched against the level's options by id
// and then by label. Everything below level is cleared before the next level
// is fetched.
//
// An empty option list for the next level is not an error: the machine stays
// where it is and Options reports the empty list.
func (m *Machine) Select(ctx context.Context, level ghg.Level, value string) error {
	m.mu.Lock()
	if !level.Valid() || !m.path.Ready(level) {
		m.mu.Unlock()
		return fmt.Errorf("select %s: %w", level, ErrLevelNotReady)
	}
	opt, ok := m.levels[level].Find(value)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("select %s %q: %w", level, value, ErrUnknownOption)
	}
	ctx, gen := m.transition(ctx, m.path.Set(level, opt), level+1)
	m.mu.Unlock()

	next, ok := level.Next()
	if !ok {
		m.finish(gen)
		return nil
	}
	return m.advance(ctx, gen, next)
}

// transition installs path, drops every option list from level down along
// with the factor, and cancels whatever the previous generation had in
// flight. Callers hold m.mu.
func (m *Machine) transition(ctx context.Context, path ghg.Path, level ghg.Level) (context.Context, uint64) {
	if m.cancel != nil {
		m.cancel()
	}
	if m.cancelCalc != nil {
		m.cancelCalc()
		m.cancelCalc = nil
	}
	m.gen++
	m.path = path
	for l := int(level); l < len(m.levels); l++ {
		m.levels[l] = nil
	}
	for l := range m.loading {
		m.loading[l] = false
	}
	m.calculating = false
	m.result = nil

	ctx, m.cancel = context.WithCancel(ctx)
	return ctx, m.gen
}

// advance loads level and keeps going while a level holds only the
// sentinel.
func (m *Machine) advance(ctx context.Context, gen uint64, level ghg.Level) error {
	defer m.finish(gen)
	for {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return nil
		}
		m.loading[level] = true
		path := m.path
		m.mu.Unlock()

		opts := m.options.Children(ctx, level, path)

		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return nil
		}
		m.loading[level] = false
		m.levels[level] = opts
		if !opts.IsNotApplicable() {
			m.mu.Unlock()
			return nil
		}
		m.path = m.path.Set(level, opts[0])
		m.mu.Unlock()

		next, ok := level.Next()
		if !ok {
			return nil
		}
		level = next
	}
}

// finish releases the generation's context once its work is done.
func (m *Machine) finish(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Calculate resolves the current path. It always asks the resolver; a
// result that arrives after the path has changed is returned with ErrStale
// and not kept.
func (m *Machine) Calculate(ctx context.Context) (ghg.FactorResult, error) {
	m.mu.Lock()
	if !m.path.Complete() {
		m.mu.Unlock()
		return ghg.FactorResult{}, ErrIncomplete
	}
	if !m.canCalculate() {
		m.mu.Unlock()
		return ghg.FactorResult{}, ErrNotReady
	}
	m.calculating = true
	m.result = nil
	gen, path := m.gen, m.path
	ctx, cancel := context.WithCancel(ctx)
	m.cancelCalc = cancel
	m.mu.Unlock()
	defer cancel()

	res := m.factors.Resolve(ctx, path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || !res.Matches(m.path) {
		return res, ErrStale
	}
	m.calculating = false
	m.cancelCalc = nil
	m.result = &res
	return res, nil
}

func (m *Machine) canCalculate() bool {
	if !m.path.Complete() || m.calculating {
		return false
	}
	for _, l := range m.loading {
		if l {
			return false
		}
	}
	return true
}

// CanCalculate reports whether Calculate would run: the path is complete and
// nothing is loading.
func (m *Machine) CanCalculate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canCalculate()
}

// CanAddEntry reports whether the current path has an available factor.
func (m *Machine) CanAddEntry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result != nil && m.result.Available && m.result.Matches(m.path)
}

// Result returns the factor for the current path, if one was calculated.
func (m *Machine) Result() (ghg.FactorResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return ghg.FactorResult{}, false
	}
	return *m.result, true
}

// Display renders the current factor or the placeholder.
func (m *Machine) Display() string {
	res, ok := m.Result()
	if !ok {
		return ghg.Placeholder
	}
	return res.Display()
}

func (m *Machine) Loading(level ghg.Level) bool {
	if !level.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading[level]
}

func (m *Machine) Calculating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calculating
}

// Options returns the loaded option list of level. Nil means not loaded.
func (m *Machine) Options(level ghg.Level) ghg.Options {
	if !level.Valid() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels[level] == nil {
		return nil
	}
	return append(ghg.Options{}, m.levels[level]...)
}

func (m *Machine) Path() ghg.Path {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State(m.path.Depth())
}

// OpenLevel is the first level without a choice, or false when complete.
func (m *Machine) OpenLevel() (ghg.Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.path.Depth()
	if d >= len(m.levels) {
		return 0, false
	}
	return ghg.Level(d), true
}
