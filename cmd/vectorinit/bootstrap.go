package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"rag-system/vectorinit/internal/orchestrator"

	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Enable pgvector and grant database privileges, then exit",
	Long: `Bootstrap prepares the RAG database in order:

  1. CREATE EXTENSION IF NOT EXISTS vector;
  2. GRANT ALL PRIVILEGES ON DATABASE <database> TO <role>;

Statements that are already in effect are reported as already-applied, so
the command is safe to run on every deploy. It prints a JSON result to
stdout and exits 0 on success or non-zero on failure, naming the failing
statement.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Bootstrap.Timeout)
	defer cancel()

	if app.otelProvider != nil {
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			if err := app.otelProvider.Shutdown(shutCtx); err != nil {
				slog.Warn("OTEL shutdown error", "err", err)
			}
		}()
	}

	result, err := app.orchestrator.RunBootstrap(ctx)
	if err != nil {
		printResult(os.Stdout, "error", err.Error())
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	printBootstrapResult(os.Stdout, result)
	return resultError(result)
}

// resultError turns a failed run into the command error, naming the
// statement that stopped it.
func resultError(result *orchestrator.BootstrapResult) error {
	if result.Status != orchestrator.StatusError {
		return nil
	}
	f := result.Failure
	if f == nil {
		return errors.New("bootstrap completed with errors")
	}
	if f.Index == 0 {
		return fmt.Errorf("bootstrap failed before any statement ran [%s]: %s", f.Kind, f.Error)
	}
	return fmt.Errorf("bootstrap failed at statement %d (%s) [%s]", f.Index, f.Description, f.Kind)
}

func printBootstrapResult(w io.Writer, result *orchestrator.BootstrapResult) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(w, `{"status":%q}`+"\n", result.Status)
	}
}

func printResult(w io.Writer, status, errMsg string) {
	result := map[string]string{"status": status}
	if errMsg != "" {
		result["error"] = errMsg
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		// Fallback to plain text if JSON encoding somehow fails.
		fmt.Fprintf(w, `{"status":%q}`+"\n", status)
	}
}
