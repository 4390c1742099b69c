package orchestrator

import (
	"errors"
	"sync"
	"time"

	"rag-system/vectorinit/internal/dbsetup"
)

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Phase names.
const (
	PhasePostgres = "postgres"
	PhaseNATS     = "nats"
	PhaseRedis    = "redis"
)

// BootstrapResult is the aggregate result of one bootstrap run.
// The embedded mutex guards Phases while notification phases write
// concurrently; a result returned by RunBootstrap is no longer mutated.
type BootstrapResult struct {
	sync.Mutex
	Status     string                    `json:"status"` // "ok", "error", "in-progress"
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt time.Time                 `json:"finishedAt"`
	Phases     map[string]PhaseResult    `json:"phases"`
	Statements []dbsetup.StatementResult `json:"statements"`
	Failure    *Failure                  `json:"failure,omitempty"`
}

// Failure identifies the statement that stopped the run. Index 0 means the
// session could not be opened.
type Failure struct {
	Index       int          `json:"index"`
	Description string       `json:"description"`
	Kind        dbsetup.Kind `json:"kind"`
	Error       string       `json:"error"`
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "error", "skipped"
	Error  string `json:"error,omitempty"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BootstrapEvent is the immutable summary handed to publishers once the
// postgres phase has finished.
type BootstrapEvent struct {
	Status     string                    `json:"status"`
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt time.Time                 `json:"finishedAt"`
	Statements []dbsetup.StatementResult `json:"statements"`
	Failure    *Failure                  `json:"failure,omitempty"`
}

// event snapshots r. Callers must not run it concurrently with phase writers.
func (r *BootstrapResult) event() BootstrapEvent {
	statements := make([]dbsetup.StatementResult, len(r.Statements))
	copy(statements, r.Statements)

	var failure *Failure
	if r.Failure != nil {
		f := *r.Failure
		failure = &f
	}

	return BootstrapEvent{
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Statements: statements,
		Failure:    failure,
	}
}

// failureFrom extracts the failing statement from a bootstrap error.
func failureFrom(err error) *Failure {
	var be *dbsetup.BootstrapError
	if errors.As(err, &be) {
		return &Failure{
			Index:       be.Index,
			Description: be.Description,
			Kind:        be.Kind,
			Error:       err.Error(),
		}
	}
	return &Failure{Kind: dbsetup.KindUnclassified, Error: err.Error()}
}
