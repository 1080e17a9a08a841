package session

import "fmt"

// Member is one person on a project team.
type Member struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Name  string `mapstructure:"name" yaml:"name"`
	Email string `mapstructure:"email" yaml:"email"`
	Role  Role   `mapstructure:"role" yaml:"role"`
}

// Roster is a project team keyed by member ID. IDs are unique; insertion
// order is kept for display.
type Roster struct {
	members map[string]Member
	order   []string
}

func NewRoster(members ...Member) (*Roster, error) {
	r := &Roster{members: make(map[string]Member)}
	for _, m := range members {
		if err := r.Add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add inserts m. Returns ErrDuplicateMember if the ID is taken.
func (r *Roster) Add(m Member) error {
	if m.ID == "" {
		return fmt.Errorf("member %q has no id", m.Name)
	}
	if _, ok := r.members[m.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMember, m.ID)
	}
	if m.Role == "" {
		m.Role = RoleViewer
	}
	r.members[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

func (r *Roster) Get(id string) (Member, bool) {
	m, ok := r.members[id]
	return m, ok
}

// SetRole changes an existing member's role.
func (r *Roster) SetRole(id string, role Role) error {
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	m.Role = role
	r.members[id] = m
	return nil
}

func (r *Roster) Remove(id string) error {
	if _, ok := r.members[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	delete(r.members, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Roster) Len() int { return len(r.order) }

// List returns members in insertion order.
func (r *Roster) List() []Member {
	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// WithRole returns the members holding role, in insertion order.
func (r *Roster) WithRole(role Role) []Member {
	var out []Member
	for _, id := range r.order {
		if m := r.members[id]; m.Role == role {
			out = append(out, m)
		}
	}
	return out
}
