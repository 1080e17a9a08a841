package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 250 * time.Millisecond
)

// LedgerLock serializes writers of one project's rows in the local ledger.
// Writers of different projects share the SQLite file but not the lock, so
// they do not wait on each other.
type LedgerLock struct {
	lock    *flock.Flock
	path    string
	project string
}

// NewLedgerLock returns the lock guarding projectID in the ledger at dbPath.
// An empty project locks the whole ledger.
func NewLedgerLock(dbPath, projectID string) (*LedgerLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	path := lockPath(absPath, projectID)
	return &LedgerLock{
		lock:    flock.New(path),
		path:    path,
		project: projectID,
	}, nil
}

func lockPath(absDBPath, projectID string) string {
	if projectID == "" {
		return absDBPath + lockFileSuffix
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, projectID)
	return absDBPath + "." + safe + lockFileSuffix
}

func (l *LedgerLock) Path() string { return l.path }

// Lock acquires the lock. If another process holds it the user is told and
// Lock keeps retrying until ctx is done.
func (l *LedgerLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	if l.project != "" {
		fmt.Fprintf(os.Stderr, "Another ghgstage process is writing project %s, waiting for it to finish...\n", l.project)
	} else {
		fmt.Fprintf(os.Stderr, "Another ghgstage process is writing to the ledger, waiting for it to finish...\n")
	}
	if _, err := l.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	return nil
}

// Unlock releases the lock.
func (l *LedgerLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path. An empty path means the default
// under ~/.config/ghgstage.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "ghgstage", "ghgstage.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
