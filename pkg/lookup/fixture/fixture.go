// Package fixture is an in-memory lookup.Service backed by a YAML hierarchy.
// It backs `ghgstage serve` and stands in for the real service in tests,
// with call counting and per-operation fault injection.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
)

// Operation names, for Calls and Fail.
const (
	OpListMainCategories   = "ListMainCategories"
	OpListSubCategories    = "ListSubCategories"
	OpListActivities       = "ListActivities"
	OpListSelection1       = "ListSelection1"
	OpListSelection2       = "ListSelection2"
	OpGetFactor            = "GetFactor"
	OpListStagedActivities = "ListStagedActivities"
	OpAppendStaged         = "AppendStagedActivity"
	OpUpdateStaged         = "UpdateStagedActivity"
	OpDeleteStaged         = "DeleteStagedActivity"
	OpCommit               = "CommitStagedChanges"
)

var ErrUnknownSubcategory = errors.New("unknown subcategory id")

// leaf is a resolvable end of the tree, indexed by subcategory id.
type leaf struct {
	category Category
	sub      string
	activity string
	sel1     ghg.Option
	sel2     ghg.Option
	node     *Node
}

type Service struct {
	mu        sync.Mutex
	tree      *Tree
	leaves    map[string]leaf
	calls     map[string]int
	faults    map[string]error
	staged    map[string][]lookup.StagedActivity
	committed map[string][]lookup.StagedActivity
	nextID    int
}

var _ lookup.Service = (*Service)(nil)

// New serves tree. A nil tree serves DefaultTree.
func New(tree *Tree) *Service {
	if tree == nil {
		tree = DefaultTree()
	}
	s := &Service{
		tree:      tree,
		leaves:    make(map[string]leaf),
		calls:     make(map[string]int),
		faults:    make(map[string]error),
		staged:    make(map[string][]lookup.StagedActivity),
		committed: make(map[string][]lookup.StagedActivity),
	}
	s.index()
	return s
}

func (s *Service) index() {
	for ci := range s.tree.Categories {
		c := s.tree.Categories[ci]
		for si := range c.SubCategories {
			sc := &s.tree.Categories[ci].SubCategories[si]
			for ai := range sc.Activities {
				act := &sc.Activities[ai]
				if len(act.Options) == 0 {
					s.addLeaf(leaf{c, sc.Name, act.Name, ghg.NotApplicable(), ghg.NotApplicable(), act})
					continue
				}
				for oi := range act.Options {
					sel1 := &act.Options[oi]
					if len(sel1.Options) == 0 {
						s.addLeaf(leaf{c, sc.Name, act.Name, ghg.Named(sel1.Name), ghg.NotApplicable(), sel1})
						continue
					}
					for pi := range sel1.Options {
						sel2 := &sel1.Options[pi]
						s.addLeaf(leaf{c, sc.Name, act.Name, ghg.Named(sel1.Name), ghg.Named(sel2.Name), sel2})
					}
				}
			}
		}
	}
}

func (s *Service) addLeaf(l leaf) {
	if l.node.SubcategoryID != "" {
		s.leaves[l.node.SubcategoryID] = l
	}
}

// Fail makes op return err until Heal is called. A nil err heals.
func (s *Service) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Service) Heal(op string) { s.Fail(op, nil) }

// Calls returns how many times op has been invoked, failures included.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// SetFactor changes the factor of a leaf, as a server-side correction would.
func (s *Service) SetFactor(subcategoryID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leaves[subcategoryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubcategory, subcategoryID)
	}
	l.node.Factor = value
	return nil
}

// Staged returns the project's staged activities across all scopes.
func (s *Service) Staged(projectID string) []lookup.StagedActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lookup.StagedActivity(nil), s.staged[projectID]...)
}

// Committed returns what CommitStagedChanges has moved into the project.
func (s *Service) Committed(projectID string) []lookup.StagedActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lookup.StagedActivity(nil), s.committed[projectID]...)
}

// enter counts op and returns its injected fault. Callers hold s.mu.
func (s *Service) enter(op string) error {
	s.calls[op]++
	return s.faults[op]
}

func (s *Service) ListMainCategories(ctx context.Context, scope ghg.Scope, db ghg.Database) ([]ghg.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListMainCategories); err != nil {
		return nil, err
	}
	var out []ghg.Option
	for _, c := range s.tree.Categories {
		if c.Scope == int(scope) && c.Database == string(db) {
			out = append(out, ghg.Option{ID: c.ID, Label: c.Name})
		}
	}
	return out, nil
}

func (s *Service) ListSubCategories(ctx context.Context, mainCategoryID string) ([]ghg.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListSubCategories); err != nil {
		return nil, err
	}
	c := s.category(mainCategoryID)
	if c == nil {
		return nil, nil
	}
	out := make([]ghg.Option, 0, len(c.SubCategories))
	for _, sc := range c.SubCategories {
		out = append(out, ghg.Named(sc.Name))
	}
	return out, nil
}

func (s *Service) ListActivities(ctx context.Context, mainCategoryID, subCategory string) ([]ghg.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListActivities); err != nil {
		return nil, err
	}
	return names(s.activities(mainCategoryID, subCategory)), nil
}

func (s *Service) ListSelection1(ctx context.Context, mainCategoryID, subCategory, activity string) ([]ghg.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListSelection1); err != nil {
		return nil, err
	}
	act := find(s.activities(mainCategoryID, subCategory), activity)
	if act == nil {
		return nil, nil
	}
	return childOptions(act), nil
}

func (s *Service) ListSelection2(ctx context.Context, mainCategoryID, subCategory, activity, selection1 string) ([]ghg.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListSelection2); err != nil {
		return nil, err
	}
	act := find(s.activities(mainCategoryID, subCategory), activity)
	if act == nil {
		return nil, nil
	}
	if len(act.Options) == 0 {
		if selection1 == ghg.NotApplicableLabel {
			return []ghg.Option{ghg.NotApplicable()}, nil
		}
		return nil, nil
	}
	sel1 := find(act.Options, selection1)
	if sel1 == nil {
		return nil, nil
	}
	return childOptions(sel1), nil
}

func (s *Service) GetFactor(ctx context.Context, q lookup.FactorQuery) (lookup.Factor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetFactor); err != nil {
		return lookup.Factor{}, err
	}
	c := s.category(q.MainCategoryID)
	if c == nil || c.Scope != int(q.Scope) || c.Database != string(q.Database) {
		return lookup.Factor{}, lookup.ErrNotAvailable
	}
	node := find(s.activities(q.MainCategoryID, q.SubCategory), q.Activity)
	for _, next := range []string{q.Selection1, q.Selection2} {
		if node == nil {
			return lookup.Factor{}, lookup.ErrNotAvailable
		}
		if len(node.Options) == 0 {
			if next != ghg.NotApplicableLabel {
				return lookup.Factor{}, lookup.ErrNotAvailable
			}
			continue
		}
		node = find(node.Options, next)
	}
	if node == nil || len(node.Options) > 0 || node.Factor == "" {
		return lookup.Factor{}, lookup.ErrNotAvailable
	}
	v, err := decimal.NewFromString(node.Factor)
	if err != nil {
		return lookup.Factor{}, fmt.Errorf("%w: bad fixture factor %q", lookup.ErrNotAvailable, node.Factor)
	}
	return lookup.Factor{Value: v, SubcategoryID: node.SubcategoryID}, nil
}

func (s *Service) ListStagedActivities(ctx context.Context, projectID string, scope ghg.Scope) ([]lookup.StagedActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListStagedActivities); err != nil {
		return nil, err
	}
	var out []lookup.StagedActivity
	for _, a := range s.staged[projectID] {
		if a.Scope == scope {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) AppendStagedActivity(ctx context.Context, projectID, subcategoryID, frequency string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpAppendStaged); err != nil {
		return "", err
	}
	a, err := s.activityFor(subcategoryID)
	if err != nil {
		return "", err
	}
	s.nextID++
	a.ID = "stg-" + strconv.Itoa(s.nextID)
	a.Frequency = frequency
	s.staged[projectID] = append(s.staged[projectID], a)
	return a.ID, nil
}

func (s *Service) UpdateStagedActivity(ctx context.Context, projectID, oldSubcategoryID, newSubcategoryID, frequency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateStaged); err != nil {
		return err
	}
	list := s.staged[projectID]
	for i := range list {
		if list[i].SubcategoryID != oldSubcategoryID {
			continue
		}
		a, err := s.activityFor(newSubcategoryID)
		if err != nil {
			return err
		}
		a.ID = list[i].ID
		a.Frequency = frequency
		list[i] = a
		return nil
	}
	return fmt.Errorf("no staged activity for subcategory %s", oldSubcategoryID)
}

func (s *Service) DeleteStagedActivity(ctx context.Context, projectID, subcategoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteStaged); err != nil {
		return err
	}
	list := s.staged[projectID]
	for i := range list {
		if list[i].SubcategoryID == subcategoryID {
			s.staged[projectID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no staged activity for subcategory %s", subcategoryID)
}

func (s *Service) CommitStagedChanges(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCommit); err != nil {
		return err
	}
	s.committed[projectID] = append(s.committed[projectID], s.staged[projectID]...)
	delete(s.staged, projectID)
	return nil
}

func (s *Service) activityFor(subcategoryID string) (lookup.StagedActivity, error) {
	l, ok := s.leaves[subcategoryID]
	if !ok {
		return lookup.StagedActivity{}, fmt.Errorf("%w: %s", ErrUnknownSubcategory, subcategoryID)
	}
	factor, _ := decimal.NewFromString(l.node.Factor)
	return lookup.StagedActivity{
		SubcategoryID:  subcategoryID,
		Scope:          ghg.Scope(l.category.Scope),
		Database:       ghg.Database(l.category.Database),
		MainCategoryID: l.category.ID,
		MainCategory:   l.category.Name,
		SubCategory:    l.sub,
		Activity:       l.activity,
		Selection1:     l.sel1.Value(),
		Selection2:     l.sel2.Value(),
		EmissionFactor: factor,
	}, nil
}

func (s *Service) category(id string) *Category {
	for i := range s.tree.Categories {
		if s.tree.Categories[i].ID == id {
			return &s.tree.Categories[i]
		}
	}
	return nil
}

func (s *Service) activities(mainCategoryID, subCategory string) []Node {
	c := s.category(mainCategoryID)
	if c == nil {
		return nil
	}
	for _, sc := range c.SubCategories {
		if sc.Name == subCategory {
			return sc.Activities
		}
	}
	return nil
}

func find(nodes []Node, name string) *Node {
	for i := range nodes {
		if nodes[i].Name == name {
			return &nodes[i]
		}
	}
	return nil
}

func names(nodes []Node) []ghg.Option {
	out := make([]ghg.Option, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ghg.Named(n.Name))
	}
	return out
}

// childOptions lists a node's options, or the sentinel for a leaf.
func childOptions(n *Node) []ghg.Option {
	if len(n.Options) == 0 {
		return []ghg.Option{ghg.NotApplicable()}
	}
	return names(n.Options)
}
