package dbsetup

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Execer is the subset of *pgx.Conn used to apply statements. Every statement
// of a run goes through the same Execer.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Outcome of a single statement that did not abort the run.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already-applied"
)

// StatementResult records what happened to one statement.
type StatementResult struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	Outcome     Outcome `json:"outcome"`
}

// Apply executes statements in order on conn. Each statement is its own unit;
// there is no wrapping transaction. Already-exists errors count as success; the first
// other error stops the run and is returned as a *BootstrapError. Results are
// returned for every statement that completed, including on failure.
func Apply(ctx context.Context, conn Execer, statements []Statement) ([]StatementResult, error) {
	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	tracer := otel.Tracer("vectorinit")
	results := make([]StatementResult, 0, len(statements))

	for i, stmt := range statements {
		index := i + 1

		if strings.TrimSpace(stmt.SQL) == "" {
			return results, &BootstrapError{
				Index:       index,
				Description: stmt.Description,
				Kind:        KindSyntaxOrCompatibility,
				Err:         errors.New("empty statement"),
			}
		}

		outcome, err := applyOne(ctx, tracer, conn, index, stmt)
		if err != nil {
			return results, err
		}
		results = append(results, StatementResult{
			Index:       index,
			Description: stmt.Description,
			Outcome:     outcome,
		})
	}

	return results, nil
}

func applyOne(ctx context.Context, tracer trace.Tracer, conn Execer, index int, stmt Statement) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "dbsetup.statement")
	defer span.End()
	span.SetAttributes(
		attribute.Int("statement.index", index),
		attribute.String("statement.description", stmt.Description),
	)

	_, err := conn.Exec(ctx, stmt.SQL)
	if err == nil {
		slog.InfoContext(ctx, "setup statement applied", "index", index, "description", stmt.Description)
		span.SetAttributes(attribute.String("statement.outcome", string(OutcomeApplied)))
		return OutcomeApplied, nil
	}

	kind := Classify(err)
	if kind == KindAlreadyApplied {
		slog.InfoContext(ctx, "setup statement already applied",
			"index", index, "description", stmt.Description, "detail", err.Error())
		span.SetAttributes(attribute.String("statement.outcome", string(OutcomeAlreadyApplied)))
		return OutcomeAlreadyApplied, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	slog.ErrorContext(ctx, "setup statement failed",
		"index", index, "description", stmt.Description, "kind", kind, "error", err)

	return "", &BootstrapError{
		Index:       index,
		Description: stmt.Description,
		Statement:   stmt.SQL,
		Kind:        kind,
		Err:         err,
	}
}
