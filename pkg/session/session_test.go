package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterUniqueIDs(t *testing.T) {
	r, err := NewRoster(
		Member{ID: "u1", Name: "Ana", Role: RoleEditor},
		Member{ID: "u2", Name: "Bo"},
	)
	require.NoError(t, err)

	err = r.Add(Member{ID: "u1", Name: "Other"})
	assert.ErrorIs(t, err, ErrDuplicateMember)
	assert.Equal(t, 2, r.Len())

	m, ok := r.Get("u2")
	require.True(t, ok)
	assert.Equal(t, RoleViewer, m.Role, "missing role defaults to viewer")
}

func TestRosterRemoveKeepsOrder(t *testing.T) {
	r, err := NewRoster(Member{ID: "a"}, Member{ID: "b"}, Member{ID: "c"})
	require.NoError(t, err)

	require.NoError(t, r.Remove("b"))
	assert.ErrorIs(t, r.Remove("b"), ErrMemberNotFound)

	var ids []string
	for _, m := range r.List() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestRosterWithRole(t *testing.T) {
	r, err := NewRoster(
		Member{ID: "a", Role: RoleApprover},
		Member{ID: "b", Role: RoleEditor},
		Member{ID: "c", Role: RoleApprover},
	)
	require.NoError(t, err)
	require.NoError(t, r.SetRole("b", RoleApprover))

	assert.Len(t, r.WithRole(RoleApprover), 3)
	assert.ErrorIs(t, r.SetRole("zz", RoleEditor), ErrMemberNotFound)
}

func TestSessionRoleFromRoster(t *testing.T) {
	r, err := NewRoster(Member{ID: "ed", Role: RoleEditor}, Member{ID: "view", Role: RoleViewer})
	require.NoError(t, err)

	assert.NoError(t, New("ed", "p1", r).RequireEditor())
	assert.ErrorIs(t, New("view", "p1", r).RequireEditor(), ErrReadOnly)
	assert.ErrorIs(t, New("stranger", "p1", r).RequireEditor(), ErrReadOnly)
	assert.NoError(t, New("solo", "p1", nil).RequireEditor())
	assert.ErrorIs(t, New("ed", "", r).RequireEditor(), ErrNoProject)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("Approver")
	require.NoError(t, err)
	assert.True(t, role.CanEdit())

	role, err = ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}
