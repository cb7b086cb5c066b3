package store

import (
	"context"
	"errors"
	"fmt"
)

// MaxBatchIDs is the largest id set GetByIDs accepts in one call.
const MaxBatchIDs = 30

var (
	ErrNotFound   = errors.New("document not found")
	ErrTooManyIDs = fmt.Errorf("too many ids in one batch (max %d)", MaxBatchIDs)
)

const (
	Users          = "users"
	ClientProfiles = "clientProfiles"
	Routines       = "routines"
)

func BodyWeightLogs(userID string) string {
	return fmt.Sprintf("%s/%s/bodyWeightLogs", Users, userID)
}

func BodyMeasurementLogs(userID string) string {
	return fmt.Sprintf("%s/%s/bodyMeasurementLogs", Users, userID)
}

func ExerciseProgressLogs(userID string) string {
	return fmt.Sprintf("%s/%s/exerciseProgressLogs", Users, userID)
}

// Store is a small document database facade. Collections are addressed by
// slash separated paths, so subcollections look like "users/{id}/bodyWeightLogs".
type Store interface {
	// Create adds a document with a store assigned id.
	Create(ctx context.Context, coll string, data map[string]any) (string, error)
	// Set creates or overwrites the document with the given id.
	Set(ctx context.Context, coll, id string, data map[string]any) error
	// Get decodes the document into dst, or returns ErrNotFound.
	Get(ctx context.Context, coll, id string, dst any) error
	Query(ctx context.Context, coll string, q Query) ([]Document, error)
	// GetByIDs returns the existing documents among ids, in input order.
	// More than MaxBatchIDs ids is rejected with ErrTooManyIDs.
	GetByIDs(ctx context.Context, coll string, ids []string) ([]Document, error)
	// Update merges top level fields into an existing document.
	Update(ctx context.Context, coll, id string, fields map[string]any) error
	Delete(ctx context.Context, coll, id string) error
}

type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Query holds equality filters (combined with AND) and an optional ordering.
// Documents missing the ordering field are left out of ordered results.
type Query struct {
	Filters []Filter
	OrderBy *Order
}

func Where(field string, value any) Query {
	return Query{}.Where(field, value)
}

func OrderedBy(field string, desc bool) Query {
	return Query{}.OrderedBy(field, desc)
}

func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

func (q Query) OrderedBy(field string, desc bool) Query {
	q.OrderBy = &Order{Field: field, Desc: desc}
	return q
}

type Document struct {
	ID     string
	decode func(dst any) error
}

func NewDocument(id string, decode func(dst any) error) Document {
	return Document{ID: id, decode: decode}
}

func (d Document) DataTo(dst any) error {
	if d.decode == nil {
		return fmt.Errorf("document %s: no data", d.ID)
	}
	return d.decode(dst)
}

type sentinel string

// ServerTimestamp used as a field value is replaced by the backend's clock
// at write time.
const ServerTimestamp sentinel = "fittrack:server-timestamp"

// ResolveServerTimestamps returns a shallow copy of data with every
// ServerTimestamp value replaced by ts.
func ResolveServerTimestamps(data map[string]any, ts any) map[string]any {
	resolved := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(sentinel); ok && s == ServerTimestamp {
			resolved[k] = ts
			continue
		}
		resolved[k] = v
	}
	return resolved
}

// DedupIDs drops empty and repeated ids, keeping the first occurrence.
func DedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
