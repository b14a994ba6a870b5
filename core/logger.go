package core

// Logger is implemented by the logging services.
// args may hold errors, map[string]interface{} extras, an Actor and a JobRun.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// JobRecorder records the outcome of background jobs.
type JobRecorder interface {
	ObserveJob(job string, seconds float64, processed int, err error)
}

// Actor identifies who triggered a logged event. Loggers attach it to reported errors.
type Actor struct {
	ID    string
	Name  string
	Email string
}

// JobRun tags log entries emitted while a background job runs.
type JobRun struct {
	Job   string
	RunID string
}
