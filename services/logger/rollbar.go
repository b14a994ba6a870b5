package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/NickGuerrero/cti-sys/core"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, core.Actor, core.JobRun
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		actorSet bool
		run      *core.JobRun
		extras   map[string]interface{}
	)
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Actor:
			if !actorSet { // only set one Actor
				rollbar.SetPerson(a.ID, a.Name, a.Email)
				actorSet = true
			}
		case core.JobRun:
			if run == nil {
				run = &a
			}
		case map[string]interface{}:
			if extras == nil {
				extras = a
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if !actorSet {
		rollbar.ClearPerson()
	}

	// rollbar keeps a single custom map; job fields are merged into a copy of it
	if run != nil {
		merged := make(map[string]interface{}, len(extras)+2)
		for k, v := range extras {
			merged[k] = v
		}
		merged["job"] = run.Job
		if run.RunID != "" {
			merged["run_id"] = run.RunID
		}
		extras = merged
	}
	if extras != nil {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	for _, arg := range args {
		if run, ok := arg.(core.JobRun); ok {
			tag := run.Job
			if run.RunID != "" {
				tag += " " + run.RunID
			}
			msg = "[" + tag + "] " + msg
			break
		}
	}
	l.std.Println(msg)
	for _, arg := range args {
		switch arg.(type) {
		case core.Actor, core.JobRun:
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	l.std.Fatal(msg)
}
