// Package session models who is collecting data for which project.
//
// A Session is passed explicitly to every component that needs the current
// user, project or permission; there is no global user context.
package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReadOnly        = errors.New("session is read-only")
	ErrNoProject       = errors.New("session has no project")
	ErrDuplicateMember = errors.New("member already in roster")
	ErrMemberNotFound  = errors.New("member not found")
)

// Role is a member's permission on a project.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleEditor   Role = "editor"
	RoleApprover Role = "approver"
)

// ParseRole maps a config value to a Role. Empty means viewer.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleViewer:
		return RoleViewer, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleApprover:
		return RoleApprover, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// CanEdit reports whether the role may stage, edit or commit rows.
func (r Role) CanEdit() bool { return r == RoleEditor || r == RoleApprover }

// Session is the ambient context of one data-collection session.
type Session struct {
	UserID    string
	ProjectID string
	Role      Role
}

// New builds a session for userID on projectID. The role comes from the
// roster; users missing from it are viewers. A nil roster grants editor,
// which is what a single-user setup wants.
func New(userID, projectID string, roster *Roster) Session {
	s := Session{UserID: userID, ProjectID: projectID, Role: RoleEditor}
	if roster != nil {
		s.Role = RoleViewer
		if m, ok := roster.Get(userID); ok {
			s.Role = m.Role
		}
	}
	return s
}

func (s Session) CanEdit() bool { return s.Role.CanEdit() }

// RequireEditor returns nil when the session may mutate staged data.
func (s Session) RequireEditor() error {
	if s.ProjectID == "" {
		return ErrNoProject
	}
	if !s.CanEdit() {
		return fmt.Errorf("%w: user %q is a %s", ErrReadOnly, s.UserID, s.Role)
	}
	return nil
}
