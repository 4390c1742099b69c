package dbsetup

import (
	"errors"
	"fmt"
)

const (
	// DefaultEmbeddingDimensions matches the sentence-transformers model used
	// by the RAG backend (all-MiniLM-L6-v2).
	DefaultEmbeddingDimensions = 384

	// maxVectorDimensions is the pgvector limit for the vector type.
	maxVectorDimensions = 16000
)

// ErrInvalidDimensions is returned when the embedding width is outside the
// range pgvector accepts.
var ErrInvalidDimensions = errors.New("invalid embedding dimensions")

// Plan describes the bootstrap to perform. The zero value is not usable:
// Database and Role are required.
type Plan struct {
	Database string
	Role     string

	// Tables also creates the RAG application tables after the grant.
	Tables              bool
	EmbeddingDimensions int
}

// Statements renders the plan in apply order: extension, grant, then the
// optional tables. The extension always comes first because the
// document_chunks table depends on the vector type.
func (p Plan) Statements() ([]Statement, error) {
	grant, err := GrantAllOnDatabase(p.Database, p.Role)
	if err != nil {
		return nil, err
	}

	stmts := []Statement{CreateVectorExtension(), grant}
	if !p.Tables {
		return stmts, nil
	}

	tables, err := TableStatements(p.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	return append(stmts, tables...), nil
}

// TableStatements returns the guarded DDL for the chat, document and chunk
// tables. dims of 0 selects DefaultEmbeddingDimensions.
func TableStatements(dims int) ([]Statement, error) {
	if dims == 0 {
		dims = DefaultEmbeddingDimensions
	}
	if dims < 1 || dims > maxVectorDimensions {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidDimensions, dims, maxVectorDimensions)
	}

	return []Statement{
		{
			Description: "create chats table",
			SQL: `CREATE TABLE IF NOT EXISTS chats (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    title VARCHAR(255) NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT now(),
    updated_at TIMESTAMP NOT NULL DEFAULT now()
);`,
		},
		{
			Description: "create chat_messages table",
			SQL: `CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    chat_id UUID NOT NULL,
    message TEXT NOT NULL,
    response TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL DEFAULT now()
);`,
		},
		{
			Description: "create documents table",
			SQL: `CREATE TABLE IF NOT EXISTS documents (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    chat_id UUID NOT NULL,
    filename VARCHAR(255) NOT NULL,
    content TEXT NOT NULL,
    upload_date TIMESTAMP NOT NULL DEFAULT now()
);`,
		},
		{
			Description: "create document_chunks table",
			SQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    chat_id UUID NOT NULL,
    document_id UUID NOT NULL,
    chunk_text TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    embedding vector(%d)
);`, dims),
		},
		{
			Description: "index document_chunks by chat",
			SQL:         "CREATE INDEX IF NOT EXISTS idx_document_chunks_chat_id ON document_chunks (chat_id);",
		},
		{
			Description: "index document_chunks by document",
			SQL:         "CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks (document_id);",
		},
	}, nil
}
