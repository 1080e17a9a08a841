// Package notify carries non-blocking, user-facing notifications raised by
// the data-collection components. A failure that the user can recover from
// by re-interacting is reported here instead of being returned as an error.
package notify

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Notification is one toast.
type Notification struct {
	Level   Level
	Message string
	Err     error
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

func Info(n Notifier, format string, args ...interface{}) {
	send(n, LevelInfo, nil, format, args...)
}

func Warn(n Notifier, err error, format string, args ...interface{}) {
	send(n, LevelWarning, err, format, args...)
}

func Error(n Notifier, err error, format string, args ...interface{}) {
	send(n, LevelError, err, format, args...)
}

func send(n Notifier, level Level, err error, format string, args ...interface{}) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: level, Message: fmt.Sprintf(format, args...), Err: err})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(Notification) {}

// LogNotifier writes notifications to a logrus logger.
type LogNotifier struct {
	Log *logrus.Logger
}

func (l LogNotifier) Notify(n Notification) {
	if l.Log == nil {
		return
	}
	entry := logrus.NewEntry(l.Log)
	if n.Err != nil {
		entry = entry.WithError(n.Err)
	}
	switch n.Level {
	case LevelError:
		entry.Error(n.Message)
	case LevelWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of what has been recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many notifications of level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}
