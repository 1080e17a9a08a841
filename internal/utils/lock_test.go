package utils

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAbsDBPath(t *testing.T) {
	p, err := GetAbsDBPath("")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, filepath.Join(".config", "ghgstage", "ghgstage.sqlite")))

	p, err = GetAbsDBPath("ledger.sqlite")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))
}

func TestLockPath(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{"", "/data/ledger.sqlite.lock"},
		{"proj-1", "/data/ledger.sqlite.proj-1.lock"},
		{"acme/plant 2", "/data/ledger.sqlite.acme_plant_2.lock"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lockPath("/data/ledger.sqlite", tt.project), tt.project)
	}
}

func TestLedgerLockPerProject(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.sqlite")

	a, err := NewLedgerLock(path, "proj-1")
	require.NoError(t, err)
	require.NoError(t, a.Lock(ctx))

	other, err := NewLedgerLock(path, "proj-2")
	require.NoError(t, err)
	require.NoError(t, other.Lock(ctx))
	require.NoError(t, other.Unlock())

	same, err := NewLedgerLock(path, "proj-1")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, same.Lock(waitCtx), context.DeadlineExceeded)

	require.NoError(t, a.Unlock())
	require.NoError(t, same.Lock(ctx))
	require.NoError(t, same.Unlock())
}
