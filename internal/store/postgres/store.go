package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// timestampLayout is fixed width so jsonb string ordering is chronological.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS document
(
    collection VARCHAR     NOT NULL,
    id         VARCHAR     NOT NULL,
    data       JSONB       NOT NULL DEFAULT '{}',
    seq        BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS ix_document_data ON document USING gin (data jsonb_path_ops);
`

// Store keeps every collection in one jsonb document table.
type Store struct {
	db    *pgxpool.Pool
	newID func() string
	now   func() time.Time
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:    db,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("ensure document schema: %w", err)
	}
	return nil
}

func (s *Store) encode(data map[string]any) (string, error) {
	resolved := store.ResolveServerTimestamps(data, s.now().UTC().Format(timestampLayout))
	raw, err := json.Marshal(resolved)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(raw), nil
}

func (s *Store) Create(ctx context.Context, coll string, data map[string]any) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll))

	raw, err := s.encode(data)
	if err != nil {
		return "", err
	}

	id := s.newID()
	if _, err := s.db.Exec(
		ctx,
		`INSERT INTO document (collection, id, data) VALUES ($1, $2, $3::jsonb);`,
		coll, id, raw,
	); err != nil {
		if pkg.IsUniqueViolationError(err) {
			return "", fmt.Errorf("document id collision [%s/%s]: %w", coll, id, err)
		}
		return "", err
	}

	span.SetAttributes(attribute.String("id", id))
	return id, nil
}

func (s *Store) Set(ctx context.Context, coll, id string, data map[string]any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.set")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	raw, err := s.encode(data)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		ctx,
		`INSERT INTO document (collection, id, data) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data;`,
		coll, id, raw,
	)
	return err
}

func (s *Store) Get(ctx context.Context, coll, id string, dst any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	var raw []byte
	if err := s.db.QueryRow(
		ctx,
		`SELECT data FROM document WHERE collection = $1 AND id = $2;`,
		coll, id,
	).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	return json.Unmarshal(raw, dst)
}

func (s *Store) Query(ctx context.Context, coll string, q store.Query) (_ []store.Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.query")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll))

	sql, args, err := buildQuery(coll, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs, nil
}

// buildQuery turns equality filters into a single jsonb containment check,
// which keeps json type semantics (a string "1" does not match a number 1).
func buildQuery(coll string, q store.Query) (string, []any, error) {
	sql := `SELECT id, data FROM document WHERE collection = $1`
	args := []any{coll}

	if len(q.Filters) > 0 {
		contains := make(map[string]any, len(q.Filters))
		for _, f := range q.Filters {
			contains[f.Field] = f.Value
		}
		raw, err := json.Marshal(contains)
		if err != nil {
			return "", nil, fmt.Errorf("marshal filters: %w", err)
		}
		args = append(args, string(raw))
		sql += fmt.Sprintf(` AND data @> $%d::jsonb`, len(args))
	}

	if q.OrderBy != nil {
		args = append(args, q.OrderBy.Field)
		fieldArg := len(args)
		direction := "ASC"
		if q.OrderBy.Desc {
			direction = "DESC"
		}
		sql += fmt.Sprintf(` AND data ? $%d ORDER BY data->$%d %s, seq ASC;`, fieldArg, fieldArg, direction)
	} else {
		sql += ` ORDER BY seq ASC;`
	}

	return sql, args, nil
}

func (s *Store) GetByIDs(ctx context.Context, coll string, ids []string) (_ []store.Document, err error) {
	if len(ids) > store.MaxBatchIDs {
		return nil, store.ErrTooManyIDs
	}

	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.get-by-ids")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.Int("ids", len(ids)))

	ids = store.DedupIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		ctx,
		`SELECT id, data FROM document WHERE collection = $1 AND id = ANY($2);`,
		coll, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]store.Document, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	docs := make([]store.Document, 0, len(found))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	raw, err := s.encode(fields)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(
		ctx,
		`UPDATE document SET data = data || $3::jsonb WHERE collection = $1 AND id = $2;`,
		coll, id, raw,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	_, err = s.db.Exec(
		ctx,
		`DELETE FROM document WHERE collection = $1 AND id = $2;`,
		coll, id,
	)
	return err
}

func scanDocuments(rows pgx.Rows) ([]store.Document, error) {
	var docs []store.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		docs = append(docs, store.NewDocument(id, func(dst any) error {
			return json.Unmarshal(raw, dst)
		}))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
