package crate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// tableNamePattern restricts table names to safe SQL identifiers. The table
// name is interpolated into query text (PostgreSQL cannot parameterize
// identifiers), so anything outside this pattern is rejected.
var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PG implements Querier on top of a pgx connection pool.
//
// The pool must register pgvector types on connect (see
// pgxvec.RegisterTypes in the application setup) so embedding columns scan
// directly into pgvector.Vector.
type PG struct {
	pool  *pgxpool.Pool
	table string
}

// NewPG creates the production Querier over pool, reading and writing the
// given table. The table name must be a plain lowercase identifier.
func NewPG(pool *pgxpool.Pool, table string) (*PG, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("unsafe table name %q", table)
	}
	return &PG{pool: pool, table: table}, nil
}

func (p *PG) GetCrate(ctx context.Context, id string) (Crate, error) {
	query := fmt.Sprintf(
		`SELECT id, name, description, downloads, embedding FROM %s WHERE id = $1`,
		p.table)

	var c Crate
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.Downloads, &c.Embedding)
	if err != nil {
		return Crate{}, err
	}
	return c, nil
}

func (p *PG) SetEmbedding(ctx context.Context, id string, embedding pgvector.Vector) (int64, error) {
	query := fmt.Sprintf(
		`UPDATE %s SET embedding = $2, updated_at = now() WHERE id = $1`,
		p.table)

	tag, err := p.pool.Exec(ctx, query, id, embedding)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PG) ListMissingEmbeddings(ctx context.Context) ([]Crate, error) {
	query := fmt.Sprintf(
		`SELECT id, name, description FROM %s WHERE embedding IS NULL ORDER BY id`,
		p.table)

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crates []Crate
	for rows.Next() {
		var c Crate
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		crates = append(crates, c)
	}
	return crates, rows.Err()
}

func (p *PG) ListEmbeddings(ctx context.Context) ([]Crate, error) {
	query := fmt.Sprintf(
		`SELECT id, embedding FROM %s WHERE embedding IS NOT NULL ORDER BY id`,
		p.table)

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crates []Crate
	for rows.Next() {
		var c Crate
		if err := rows.Scan(&c.ID, &c.Embedding); err != nil {
			return nil, err
		}
		crates = append(crates, c)
	}
	return crates, rows.Err()
}

func (p *PG) SearchKeyword(ctx context.Context, tsquery string, limit int) ([]KeywordMatch, error) {
	query := fmt.Sprintf(`
		SELECT id, name, description, downloads,
		       ts_rank(tsv, to_tsquery('english', $1)) AS rank
		FROM %s
		WHERE tsv @@ to_tsquery('english', $1)
		ORDER BY rank DESC, id
		LIMIT $2`, p.table)

	rows, err := p.pool.Query(ctx, query, tsquery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []KeywordMatch
	for rows.Next() {
		var m KeywordMatch
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Downloads, &m.Rank); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PG) SearchSubstring(ctx context.Context, q string, limit int) ([]KeywordMatch, error) {
	query := fmt.Sprintf(`
		SELECT id, name, description, downloads,
		       (CASE
		         WHEN name ILIKE $1 THEN 1.0
		         WHEN name ILIKE $2 THEN 0.9
		         WHEN description ILIKE $1 THEN 0.8
		         ELSE 0.7
		       END)::float4 AS rank
		FROM %s
		WHERE name ILIKE $2 OR description ILIKE $2
		ORDER BY rank DESC, id
		LIMIT $3`, p.table)

	prefix := q + "%"
	contains := "%" + q + "%"
	return p.queryMatches(ctx, query, prefix, contains, limit)
}

func (p *PG) SearchWeb(ctx context.Context, q string, limit int) ([]KeywordMatch, error) {
	query := fmt.Sprintf(`
		SELECT id, name, description, downloads,
		       ts_rank(tsv, websearch_to_tsquery('english', $1)) AS rank
		FROM %s
		WHERE tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC, id
		LIMIT $2`, p.table)

	matches, err := p.queryMatches(ctx, query, q, limit)
	if err == nil {
		return matches, nil
	}

	// Older servers lack websearch_to_tsquery; plainto accepts the same
	// free-form input without the operator syntax.
	fallback := fmt.Sprintf(`
		SELECT id, name, description, downloads,
		       ts_rank(tsv, plainto_tsquery('english', $1)) AS rank
		FROM %s
		WHERE tsv @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, id
		LIMIT $2`, p.table)
	return p.queryMatches(ctx, fallback, q, limit)
}

func (p *PG) SearchPhrase(ctx context.Context, q string, limit int) ([]KeywordMatch, error) {
	query := fmt.Sprintf(`
		SELECT id, name, description, downloads,
		       (ts_rank(tsv, phraseto_tsquery('english', $1)) * 0.6)::float4 AS rank
		FROM %s
		WHERE tsv @@ phraseto_tsquery('english', $1)
		   OR name ILIKE $2
		   OR description ILIKE $2
		ORDER BY rank DESC, id
		LIMIT $3`, p.table)

	pattern := "%" + strings.Join(strings.Fields(q), "%") + "%"
	return p.queryMatches(ctx, query, q, pattern, limit)
}

// queryMatches runs a query whose rows scan as KeywordMatch.
func (p *PG) queryMatches(ctx context.Context, query string, args ...any) ([]KeywordMatch, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []KeywordMatch
	for rows.Next() {
		var m KeywordMatch
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Downloads, &m.Rank); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PG) ClearEmbeddings(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(
		`UPDATE %s SET embedding = NULL, updated_at = now() WHERE embedding IS NOT NULL`,
		p.table)

	tag, err := p.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PG) ClearEmbedding(ctx context.Context, id string) (int64, error) {
	query := fmt.Sprintf(
		`UPDATE %s SET embedding = NULL, updated_at = now() WHERE id = $1`,
		p.table)

	tag, err := p.pool.Exec(ctx, query, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
