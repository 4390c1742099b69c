// Package dbsetup applies an ordered list of idempotent setup statements
// (extension creation, privilege grants, guarded DDL) to a PostgreSQL session.
package dbsetup

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// maxIdentifierLen is NAMEDATALEN-1. Longer names are silently truncated by
// the server, so they are rejected instead.
const maxIdentifierLen = 63

var (
	// ErrNoStatements is returned by Apply when the statement list is empty.
	ErrNoStatements = errors.New("no setup statements")

	// ErrInvalidIdentifier is returned when a database or role name cannot be
	// rendered into a statement without loss.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Statement is a single setup step: the SQL text and a human-readable
// description used in logs and failure reports.
type Statement struct {
	SQL         string `json:"sql"`
	Description string `json:"description"`
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reservedWords holds the RESERVED and TYPE_FUNC_NAME keywords. Neither
// parses as a bare database name, so both are always quoted.
var reservedWords = map[string]struct{}{
	"all": {}, "analyse": {}, "analyze": {}, "and": {}, "any": {}, "array": {},
	"as": {}, "asc": {}, "asymmetric": {}, "both": {}, "case": {}, "cast": {},
	"check": {}, "collate": {}, "column": {}, "constraint": {}, "create": {},
	"current_catalog": {}, "current_date": {}, "current_role": {},
	"current_time": {}, "current_timestamp": {}, "current_user": {},
	"default": {}, "deferrable": {}, "desc": {}, "distinct": {}, "do": {},
	"else": {}, "end": {}, "except": {}, "false": {}, "fetch": {}, "for": {},
	"foreign": {}, "from": {}, "grant": {}, "group": {}, "having": {}, "in": {},
	"initially": {}, "intersect": {}, "into": {}, "lateral": {}, "leading": {},
	"limit": {}, "localtime": {}, "localtimestamp": {}, "not": {}, "null": {},
	"offset": {}, "on": {}, "only": {}, "or": {}, "order": {}, "placing": {},
	"primary": {}, "references": {}, "returning": {}, "select": {},
	"session_user": {}, "some": {}, "symmetric": {}, "system_user": {},
	"table": {}, "then": {}, "to": {}, "trailing": {}, "true": {}, "union": {},
	"unique": {}, "user": {}, "using": {}, "variadic": {}, "when": {},
	"where": {}, "window": {}, "with": {},

	"authorization": {}, "binary": {}, "collation": {}, "concurrently": {},
	"cross": {}, "current_schema": {}, "freeze": {}, "full": {}, "ilike": {},
	"inner": {}, "is": {}, "isnull": {}, "join": {}, "left": {}, "like": {},
	"natural": {}, "notnull": {}, "outer": {}, "overlaps": {}, "right": {},
	"similar": {}, "tablesample": {}, "verbose": {},
}

// pseudoRoles are read by the GRANT grammar as PUBLIC and NONE even when
// quoted, so they cannot name a real role.
var pseudoRoles = []string{"public", "none"}

// QuoteIdent renders name as a PostgreSQL identifier. Lower-case names made of
// letters, digits, '_' and '$' are returned as-is; anything else is
// double-quoted so case and punctuation survive.
func QuoteIdent(name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidIdentifier, name)
	case len(name) > maxIdentifierLen:
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidIdentifier, name, maxIdentifierLen)
	}

	if _, reserved := reservedWords[name]; !reserved && plainIdent.MatchString(name) {
		return name, nil
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// CreateVectorExtension enables pgvector.
func CreateVectorExtension() Statement {
	return Statement{
		SQL:         "CREATE EXTENSION IF NOT EXISTS vector;",
		Description: "enable pgvector extension",
	}
}

// GrantAllOnDatabase grants every database-level privilege on database to role.
func GrantAllOnDatabase(database, role string) (Statement, error) {
	db, err := QuoteIdent(database)
	if err != nil {
		return Statement{}, fmt.Errorf("database name: %w", err)
	}
	for _, p := range pseudoRoles {
		if strings.EqualFold(role, p) {
			return Statement{}, fmt.Errorf("role name: %w: %q means %s to the server", ErrInvalidIdentifier, role, strings.ToUpper(p))
		}
	}
	r, err := QuoteIdent(role)
	if err != nil {
		return Statement{}, fmt.Errorf("role name: %w", err)
	}

	return Statement{
		SQL:         fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s;", db, r),
		Description: fmt.Sprintf("grant all privileges on database %s to %s", database, role),
	}, nil
}

// Script joins statements into a single init script, one statement per line,
// each preceded by its description as a comment.
func Script(statements []Statement) string {
	var b strings.Builder
	for i, s := range statements {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "-- %s\n%s\n", s.Description, strings.TrimSpace(s.SQL))
	}
	return b.String()
}
