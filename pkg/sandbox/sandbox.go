package sandbox

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrUnavailable is returned when the sandbox could not be reached or did not
// produce a usable answer. Callers must not treat it as a failing test.
var ErrUnavailable = errors.New("sandbox unavailable")

// Status descriptions shared by every driver, following Judge0 naming.
const (
	StatusAccepted          = "Accepted"
	StatusCompilationError  = "Compilation Error"
	StatusRuntimeError      = "Runtime Error (NZEC)"
	StatusTimeLimitExceeded = "Time Limit Exceeded"
	StatusInternalError     = "Internal Error"
)

// Sandbox runs untrusted source code and reports what happened.
type Sandbox interface {
	Execute(ctx context.Context, submission Submission) (Result, error)
}

// Submission is a single program run.
type Submission struct {
	SourceCode string
	LanguageID int
	Stdin      string
}

// Result is the terminal state reported for a submission.
type Result struct {
	Status        string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
}

var (
	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobify",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandbox executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"driver"})

	executionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobify",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of sandbox calls that did not produce a result",
	}, []string{"driver"})

	executionTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobify",
		Subsystem: "sandbox",
		Name:      "execution_timeouts_total",
		Help:      "Number of sandbox executions that hit the time limit",
	}, []string{"driver"})
)
