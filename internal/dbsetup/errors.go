package dbsetup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a statement failure.
type Kind string

const (
	KindAlreadyApplied        Kind = "already-applied"
	KindPermissionDenied      Kind = "permission-denied"
	KindConnection            Kind = "connection"
	KindSyntaxOrCompatibility Kind = "syntax-or-compatibility"
	KindUnclassified          Kind = "unclassified"
)

// BootstrapError reports the statement that stopped a run. Index is the
// 1-based position of the statement; 0 means the failure happened before any
// statement was sent (opening or pinging the session).
type BootstrapError struct {
	Index       int
	Description string
	Statement   string
	Kind        Kind
	Err         error
}

func (e *BootstrapError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("%s failed [%s]: %v", e.Description, e.Kind, e.Err)
	}
	return fmt.Sprintf("statement %d (%s) failed [%s]: %v", e.Index, e.Description, e.Kind, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the whole bootstrap on a fresh session
// can succeed without an operator change.
func (e *BootstrapError) Retryable() bool {
	return e.Kind == KindConnection
}

// KindOf returns the Kind carried by err, or "" if err is nil or carries no
// *BootstrapError.
func KindOf(err error) Kind {
	var be *BootstrapError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Classify maps a driver error to a Kind using its SQLSTATE. Errors that did
// not come from the server (dial, EOF, context deadline) mean the session is
// unusable and are classified as KindConnection.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return KindConnection
	}

	code := pgErr.Code
	switch code {
	case "42710", // duplicate_object
		"42P07", // duplicate_table
		"42P06", // duplicate_schema
		"42723", // duplicate_function
		"23505": // unique_violation: two sessions racing CREATE EXTENSION
		return KindAlreadyApplied
	case "XX000":
		// Concurrent GRANTs on the same object collide on the catalog row.
		if strings.Contains(pgErr.Message, "tuple concurrently updated") {
			return KindAlreadyApplied
		}
		return KindUnclassified
	case "42501": // insufficient_privilege
		return KindPermissionDenied
	case "3D000", // invalid_catalog_name: database does not exist
		"42704": // undefined_object: role does not exist
		return KindConnection
	case "0A000", // feature_not_supported
		"58P01", // undefined_file: extension control file missing
		"22023": // invalid_parameter_value
		return KindSyntaxOrCompatibility
	}

	switch {
	case strings.HasPrefix(code, "08"), // connection_exception
		strings.HasPrefix(code, "28"), // invalid_authorization_specification
		strings.HasPrefix(code, "57P"): // operator intervention (shutdown, crash)
		return KindConnection
	case strings.HasPrefix(code, "42"): // syntax_error_or_access_rule_violation
		return KindSyntaxOrCompatibility
	}
	return KindUnclassified
}
