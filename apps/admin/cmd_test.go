package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
	"github.com/NickGuerrero/cti-sys/tests"
)

type fakeMetricsSvc struct {
	err   error
	calls int
}

func (f *fakeMetricsSvc) ProcessAccelerateMetrics(context.Context) (participation.Result, error) {
	f.calls++
	return participation.Result{RunID: "run-1", StudentsUpdated: 7}, f.err
}

type fakeActivitySvc struct {
	th activity.Thresholds
}

func (f *fakeActivitySvc) CheckAllStudents(_ context.Context, th activity.Thresholds) (activity.Report, error) {
	f.th = th
	return activity.Report{
		StudentsProcessed:      3,
		StudentsMarkedActive:   1,
		StudentsMarkedInactive: 1,
		Details: []activity.StudentActivity{
			{CtiID: 1, Name: "Ada Lovelace", AttendanceActivity: true, Active: true},
			{CtiID: 2, Name: "Alan Turing"},
		},
		Errors: []activity.StudentError{{CtiID: 3, Error: "fetching canvas last login: boom"}},
	}, nil
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	out := new(bytes.Buffer)
	return &commandLine{
		db:          testutil.PrepareDB(t),
		metricsSvc:  &fakeMetricsSvc{},
		activitySvc: &fakeActivitySvc{},
		thresholds:  activity.DefaultThresholds(),
		out:         out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)
	tests := []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	type call struct {
		command string
		version int64
	}
	var got []call
	gooseRunFunc = func(command string, db *sqlx.DB, version int64) error {
		got = append(got, call{command, version})
		return nil
	}
	defer func() { gooseRunFunc = runMigration }()

	tests := []struct {
		cliTest
		want []call
	}{
		{cliTest: cliTest{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"}},
		{cliTest: cliTest{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: admin migrate up-to VERSION"}},
		{cliTest: cliTest{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"}},
		{cliTest: cliTest{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: admin migrate down-to VERSION"}},
		{cliTest: cliTest{name: "up", args: []string{"migrate", "up"}}, want: []call{{"up", 0}}},
		{cliTest: cliTest{name: "up-by-one", args: []string{"migrate", "up-by-one"}}, want: []call{{"up-by-one", 0}}},
		{cliTest: cliTest{name: "up-to", args: []string{"migrate", "up-to", "2"}}, want: []call{{"up-to", 2}}},
		{cliTest: cliTest{name: "down", args: []string{"migrate", "down"}}, want: []call{{"down", 0}}},
		{cliTest: cliTest{name: "down-to", args: []string{"migrate", "down-to", "1"}}, want: []call{{"down-to", 1}}},
		{cliTest: cliTest{name: "redo", args: []string{"migrate", "redo"}}, want: []call{{"redo", 0}}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			got = nil
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_commandLine_processMetrics(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, cli.run([]string{"admin", "processmetrics"}))
	assert.Equal(t, "run run-1: 7 students updated\n", out.String())

	boom := errors.New("boom")
	cli.metricsSvc = &fakeMetricsSvc{err: boom}
	assert.Equal(t, boom, cli.run([]string{"admin", "processmetrics"}))
}

func Test_commandLine_checkActivity(t *testing.T) {
	t.Run("configured thresholds", func(t *testing.T) {
		cli, out := setup(t)
		svc := cli.activitySvc.(*fakeActivitySvc)

		require.NoError(t, cli.run([]string{"admin", "checkactivity"}))
		assert.Equal(t, activity.DefaultThresholds(), svc.th)
		assert.Equal(t, "3 processed, 1 active, 1 inactive, 1 errors\nerror  3  fetching canvas last login: boom\n", out.String())
	})

	t.Run("flags", func(t *testing.T) {
		cli, out := setup(t)
		svc := cli.activitySvc.(*fakeActivitySvc)

		require.NoError(t, cli.run([]string{"admin", "checkactivity", "-attendance-weeks", "4", "-canvas-weeks", "1", "-details"}))
		assert.Equal(t, activity.Thresholds{AttendanceWeeks: 4, CanvasWeeks: 1}, svc.th)
		assert.Contains(t, out.String(), "Ada Lovelace")
		assert.Contains(t, out.String(), "Alan Turing")
	})

	t.Run("negative weeks", func(t *testing.T) {
		cli, _ := setup(t)
		assert.Equal(t, errHelp, cli.run([]string{"admin", "checkactivity", "-canvas-weeks", "-1"}))
	})
}
