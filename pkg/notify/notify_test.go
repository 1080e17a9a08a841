package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	Info(r, "loaded %d options", 3)
	Warn(r, errors.New("timeout"), "could not load %s", "activities")
	Error(r, nil, "commit failed")

	all := r.All()
	assert.Len(t, all, 3)
	assert.Equal(t, "loaded 3 options", all[0].Message)
	assert.Equal(t, 1, r.Count(LevelWarning))
	assert.EqualError(t, all[1].Err, "timeout")

	r.Reset()
	assert.Empty(t, r.All())
}

func TestNilNotifierIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { Warn(nil, nil, "ignored") })
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	LogNotifier{Log: log}.Notify(Notification{Level: LevelWarning, Message: "delete failed", Err: errors.New("503")})

	out := buf.String()
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, "delete failed")
	assert.Contains(t, out, "error=503")
}
