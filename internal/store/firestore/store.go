package firestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fittrack/internal/store"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store talks to Cloud Firestore. Collection paths map one to one onto
// firestore collection paths, so "users/{id}/bodyWeightLogs" is a subcollection.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func toFirestoreData(data map[string]any) map[string]any {
	return store.ResolveServerTimestamps(data, firestore.ServerTimestamp)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Store) Create(ctx context.Context, coll string, data map[string]any) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll))

	ref, _, err := s.client.Collection(coll).Add(ctx, toFirestoreData(data))
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("id", ref.ID))
	return ref.ID, nil
}

func (s *Store) Set(ctx context.Context, coll, id string, data map[string]any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.set")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	_, err = s.client.Collection(coll).Doc(id).Set(ctx, toFirestoreData(data))
	return err
}

func (s *Store) Get(ctx context.Context, coll, id string, dst any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	snap, err := s.client.Collection(coll).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return err
	}
	return snap.DataTo(dst)
}

func (s *Store) Query(ctx context.Context, coll string, q store.Query) (_ []store.Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.query")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll))

	fsQuery := s.client.Collection(coll).Query
	for _, f := range q.Filters {
		fsQuery = fsQuery.Where(f.Field, "==", f.Value)
	}
	if q.OrderBy != nil {
		direction := firestore.Asc
		if q.OrderBy.Desc {
			direction = firestore.Desc
		}
		fsQuery = fsQuery.OrderBy(q.OrderBy.Field, direction)
	}

	iter := fsQuery.Documents(ctx)
	defer iter.Stop()

	var docs []store.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, snapshotDocument(snap))
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs, nil
}

func (s *Store) GetByIDs(ctx context.Context, coll string, ids []string) (_ []store.Document, err error) {
	if len(ids) > store.MaxBatchIDs {
		return nil, store.ErrTooManyIDs
	}

	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.get-by-ids")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.Int("ids", len(ids)))

	ids = store.DedupIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	col := s.client.Collection(coll)
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, col.Doc(id))
	}

	// GetAll keeps the order of refs and returns non existing docs too
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}

	docs := make([]store.Document, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		docs = append(docs, snapshotDocument(snap))
	}
	return docs, nil
}

func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]any) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	updates := make([]firestore.Update, 0, len(fields))
	for field, value := range toFirestoreData(fields) {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{field},
			Value:     value,
		})
	}

	if _, err := s.client.Collection(coll).Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.firestore.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", coll), attribute.String("id", id))

	_, err = s.client.Collection(coll).Doc(id).Delete(ctx)
	return err
}

func snapshotDocument(snap *firestore.DocumentSnapshot) store.Document {
	return store.NewDocument(snap.Ref.ID, snap.DataTo)
}
