// Package crate stores crate metadata and embeddings in PostgreSQL.
//
// The Store exposes the persistence operations the embedding and search
// layers build on: loading descriptions, writing pgvector embeddings,
// listing indexed rows for brute-force similarity, and ts_rank keyword
// search over the generated tsvector column.
package crate

import (
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound indicates the referenced crate id does not exist.
	ErrNotFound = errors.New("crate not found")

	// ErrStore indicates a database failure. Concrete failures wrap this
	// sentinel via StoreError so callers can match with errors.Is.
	ErrStore = errors.New("crate store failure")
)

// StoreError wraps a database error with the operation that failed.
type StoreError struct {
	Op  string // e.g. "get", "set_embedding"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("crate store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrStore identity so errors.Is(err, ErrStore) matches.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// storeErr wraps err as a StoreError for operation op.
func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Crate is a single crate's metadata row.
// A nil Embedding means the crate has not been indexed yet.
type Crate struct {
	ID          string
	Name        string
	Description string
	Downloads   int64
	Embedding   *pgvector.Vector
}

// EmbeddingText returns the text fed to the embedder for this crate:
// "name : description", or the name alone when the description is empty.
func (c Crate) EmbeddingText() string {
	if c.Description == "" {
		return c.Name
	}
	return c.Name + " : " + c.Description
}

// KeywordMatch is a single full-text search hit with its ts_rank score.
type KeywordMatch struct {
	Crate
	Rank float32
}
