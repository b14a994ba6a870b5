package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NickGuerrero/cti-sys/core"
)

func newTestLogger(buf *bytes.Buffer) *RollbarLogger {
	l := NewRollbarLogger(log.New(buf, "TEST : ", 0), &core.Config{Env: "TEST"})
	l.Enable(false)
	return l
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := newTestLogger(new(bytes.Buffer))
	err := errors.New("boom")
	extras := map[string]interface{}{"run_id": "42"}

	got := l.prepare("failed", []interface{}{
		err,
		core.Actor{ID: "scheduler", Name: "accelerate_metrics"},
		extras,
		core.Actor{ID: "ignored"},
	})
	assert.Equal(t, []interface{}{"failed", err, extras}, got)
}

func TestRollbarLogger_print(t *testing.T) {
	buf := new(bytes.Buffer)
	l := newTestLogger(buf)

	l.Warn("metrics run failed", errors.New("boom"), core.Actor{ID: "api"})

	assert.Equal(t, "TEST : metrics run failed\nTEST : boom\n", buf.String())
}

func TestRollbarLogger_prepareJobRun(t *testing.T) {
	l := newTestLogger(new(bytes.Buffer))
	err := errors.New("boom")
	extras := map[string]interface{}{"students": 12}

	got := l.prepare("metrics run failed", []interface{}{
		core.JobRun{Job: "accelerate_metrics", RunID: "run-1"},
		err,
		extras,
	})
	assert.Equal(t, []interface{}{
		"metrics run failed",
		err,
		map[string]interface{}{"students": 12, "job": "accelerate_metrics", "run_id": "run-1"},
	}, got)
	assert.Equal(t, map[string]interface{}{"students": 12}, extras, "caller extras are left untouched")

	got = l.prepare("skipped", []interface{}{core.JobRun{Job: "accelerate_activity"}})
	assert.Equal(t, []interface{}{"skipped", map[string]interface{}{"job": "accelerate_activity"}}, got)
}

func TestRollbarLogger_printJobRun(t *testing.T) {
	buf := new(bytes.Buffer)
	l := newTestLogger(buf)

	l.Error("failed", errors.New("boom"), core.JobRun{Job: "accelerate_metrics", RunID: "run-1"})
	l.Info("done", core.JobRun{Job: "accelerate_activity"})

	assert.Equal(t, "TEST : [accelerate_metrics run-1] failed\nTEST : boom\nTEST : [accelerate_activity] done\n", buf.String())
}
