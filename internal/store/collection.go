package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"

	"lawdesk/internal/docstore"
	"lawdesk/internal/records"
)

// Patch is a partial update keyed by the record's JSON field names.
type Patch map[string]any

// scopeFunc resolves the scope for one operation; release is called when the
// operation finishes.
type scopeFunc func() (scope Scope, release func())

// kind describes how one record type is stored and ordered.
type kind[T any] struct {
	collection string
	meta       func(*T) *records.Meta
	compare    func(a, b *T) int
	defaults   func(*T)
	transition func(prev, next T) error
}

var caseKind = kind[records.Case]{
	collection: CollectionCases,
	meta:       func(r *records.Case) *records.Meta { return &r.Meta },
	compare: func(a, b *records.Case) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	},
	defaults: func(r *records.Case) {
		if r.Status == "" {
			r.Status = records.CaseInProgress
		}
	},
	transition: records.CaseTransition,
}

var eventKind = kind[records.CalendarEvent]{
	collection: CollectionEvents,
	meta:       func(r *records.CalendarEvent) *records.Meta { return &r.Meta },
	compare: func(a, b *records.CalendarEvent) int {
		return cmp.Or(cmp.Compare(b.Date, a.Date), cmp.Compare(b.Time, a.Time))
	},
	defaults: func(r *records.CalendarEvent) {
		if r.Status == "" {
			r.Status = records.EventPending
		}
		if r.Priority == "" {
			r.Priority = records.PriorityMedium
		}
		if r.Category == "" {
			r.Category = records.CategoryOther
		}
	},
}

var revenueKind = kind[records.Revenue]{
	collection: CollectionRevenues,
	meta:       func(r *records.Revenue) *records.Meta { return &r.Meta },
	compare:    func(a, b *records.Revenue) int { return cmp.Compare(b.Date, a.Date) },
}

var expenseKind = kind[records.Expense]{
	collection: CollectionExpenses,
	meta:       func(r *records.Expense) *records.Meta { return &r.Meta },
	compare:    func(a, b *records.Expense) int { return cmp.Compare(b.Date, a.Date) },
}

var documentKind = kind[records.Document]{
	collection: CollectionDocuments,
	meta:       func(r *records.Document) *records.Meta { return &r.Meta },
	compare: func(a, b *records.Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	},
}

var lawyerKind = kind[records.Lawyer]{
	collection: CollectionLawyers,
	meta:       func(r *records.Lawyer) *records.Meta { return &r.Meta },
	compare: func(a, b *records.Lawyer) int {
		return byName(a.FullName, b.FullName)
	},
	defaults: func(r *records.Lawyer) {
		if r.Status == "" {
			r.Status = records.StatusActive
		}
	},
}

var employeeKind = kind[records.Employee]{
	collection: CollectionEmployees,
	meta:       func(r *records.Employee) *records.Meta { return &r.Meta },
	compare: func(a, b *records.Employee) int {
		return byName(a.FullName, b.FullName)
	},
	defaults: func(r *records.Employee) {
		if r.Status == "" {
			r.Status = records.StatusActive
		}
	},
}

func byName(a, b string) int {
	return cmp.Or(cmp.Compare(strings.ToLower(a), strings.ToLower(b)), cmp.Compare(a, b))
}

// Collection is the CRUD surface for one record type in one scope.
type Collection[T any] struct {
	store *Store
	kind  kind[T]
	scope scopeFunc
}

func newCollection[T any](s *Store, k kind[T], scope scopeFunc) *Collection[T] {
	return &Collection[T]{store: s, kind: k, scope: scope}
}

// List returns every record in the scope, ordered for display. A backend
// failure is logged and yields an empty list.
func (c *Collection[T]) List(ctx context.Context) []T {
	scope, release := c.scope()
	defer release()
	return c.list(ctx, scope)
}

func (c *Collection[T]) list(ctx context.Context, scope Scope) []T {
	out := []T{}
	if !scope.Authenticated() {
		c.store.logger.WarnContext(ctx, "list without authenticated user", "collection", c.kind.collection)
		return out
	}
	recs, err := c.load(ctx, scope, true)
	if err != nil {
		c.store.logger.ErrorContext(ctx, "failed to list records", "collection", c.kind.collection, "scope", scope.String(), "error", err)
		return out
	}
	return recs
}

// All returns every record in the scope like List, but reports a backend
// failure or an undecodable record instead of dropping it. Backups read
// through All so an outage never exports as an empty collection.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return c.load(ctx, scope, false)
}

// load reads the collection of scope in display order. With skipBad set,
// records that fail to decode are logged and left out.
func (c *Collection[T]) load(ctx context.Context, scope Scope, skipBad bool) ([]T, error) {
	path := scope.path(c.kind.collection)
	docs, err := c.store.backend.List(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrUnavailable, path, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode[T](doc.Fields)
		if err != nil {
			if !skipBad {
				return nil, fmt.Errorf("decode %s/%s: %w", path, doc.ID, err)
			}
			c.store.logger.ErrorContext(ctx, "skipping undecodable record", "path", path.String(), "id", doc.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b T) int { return c.kind.compare(&a, &b) })
	return out, nil
}

// Get returns the record or nil when it does not exist in the scope.
func (c *Collection[T]) Get(ctx context.Context, id string) *T {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return nil
	}
	path := scope.path(c.kind.collection)
	doc, err := c.store.backend.Get(ctx, path, id)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			c.store.logger.ErrorContext(ctx, "failed to get record", "path", path.String(), "id", id, "error", err)
		}
		return nil
	}
	rec, err := decode[T](doc.Fields)
	if err != nil {
		c.store.logger.ErrorContext(ctx, "failed to decode record", "path", path.String(), "id", id, "error", err)
		return nil
	}
	return &rec
}

// Save assigns an id and creation time, stamps the scope onto the record and
// persists it.
func (c *Collection[T]) Save(ctx context.Context, rec T) (*T, error) {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if c.kind.defaults != nil {
		c.kind.defaults(&rec)
	}
	*c.kind.meta(&rec) = c.stamp(scope, uuid.NewString(), 0)
	if err := c.store.check(rec); err != nil {
		return nil, err
	}
	if err := c.put(ctx, scope, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update merges patch into the stored record and returns the result. It
// returns nil without error when id does not exist in the scope.
func (c *Collection[T]) Update(ctx context.Context, id string, patch Patch) (*T, error) {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return nil, ErrUnauthenticated
	}
	for _, key := range records.MetaKeys {
		if _, ok := patch[key]; ok {
			return nil, invalid(key, "is read-only")
		}
	}
	fields := jsonFields[T]()
	for key := range patch {
		if _, ok := fields[key]; !ok {
			return nil, invalid(key, "is not a field of "+c.kind.collection)
		}
	}

	path := scope.path(c.kind.collection)
	doc, err := c.store.backend.Get(ctx, path, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		c.store.logger.ErrorContext(ctx, "failed to load record for update", "path", path.String(), "id", id, "error", err)
		return nil, fmt.Errorf("%w: update %s/%s: %w", ErrUnavailable, path, id, err)
	}
	prev, err := decode[T](doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", path, id, err)
	}

	merged := make(map[string]any, len(doc.Fields)+len(patch))
	for k, v := range doc.Fields {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	next, err := decode[T](merged)
	if err != nil {
		return nil, invalid("patch", err.Error())
	}

	now := c.store.clock()
	meta := c.kind.meta(&next)
	*meta = *c.kind.meta(&prev)
	meta.UpdatedAt = &now

	if c.kind.transition != nil {
		if err := c.kind.transition(prev, next); err != nil {
			return nil, invalid("status", err.Error())
		}
	}
	if err := c.store.check(next); err != nil {
		return nil, err
	}
	if err := c.put(ctx, scope, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes the record permanently. It reports false when the id did
// not exist.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return false, ErrUnauthenticated
	}
	path := scope.path(c.kind.collection)
	err := c.store.backend.Delete(ctx, path, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		c.store.logger.ErrorContext(ctx, "failed to delete record", "path", path.String(), "id", id, "error", err)
		return false, fmt.Errorf("%w: delete %s/%s: %w", ErrUnavailable, path, id, err)
	}
	return true, nil
}

// Validate checks recs exactly as Replace would, without writing anything.
func (c *Collection[T]) Validate(recs []T) error {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return ErrUnauthenticated
	}
	_, err := c.prepare(scope, recs)
	return err
}

// Replace overwrites the whole collection with recs. Ids and creation times
// are kept when present; the namespace stamp always follows the scope.
// Nothing is written unless every record is valid.
func (c *Collection[T]) Replace(ctx context.Context, recs []T) error {
	scope, release := c.scope()
	defer release()

	if !scope.Authenticated() {
		return ErrUnauthenticated
	}
	docs, err := c.prepare(scope, recs)
	if err != nil {
		return err
	}

	path := scope.path(c.kind.collection)
	if err := c.store.backend.Replace(ctx, path, docs); err != nil {
		c.store.logger.ErrorContext(ctx, "failed to replace collection", "path", path.String(), "error", err)
		return fmt.Errorf("%w: replace %s: %w", ErrUnavailable, path, err)
	}
	return nil
}

// prepare stamps and validates recs for scope.
func (c *Collection[T]) prepare(scope Scope, recs []T) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0, len(recs))
	for i := range recs {
		rec := recs[i]
		meta := c.kind.meta(&rec)
		id := meta.ID
		if id == "" {
			id = uuid.NewString()
		}
		stamped := c.stamp(scope, id, meta.UserID)
		if !meta.CreatedAt.IsZero() {
			stamped.CreatedAt = meta.CreatedAt.UTC()
		}
		stamped.UpdatedAt = meta.UpdatedAt
		*meta = stamped
		if c.kind.defaults != nil {
			c.kind.defaults(&rec)
		}
		if err := c.store.check(rec); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return nil, fmt.Errorf("%s[%d]: %w", c.kind.collection, i, verr)
			}
			return nil, err
		}
		doc, err := c.document(rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection[T]) stamp(scope Scope, id string, creator int) records.Meta {
	// Only team namespaces keep a creator other than the acting user.
	if creator == 0 || !scope.IsTeam() {
		creator = scope.UserID
	}
	meta := records.Meta{
		ID:        id,
		UserID:    creator,
		CreatedAt: c.store.clock(),
	}
	if scope.IsTeam() {
		meta.TeamID = scope.TeamID.String()
	}
	return meta
}

func (c *Collection[T]) put(ctx context.Context, scope Scope, rec T) error {
	doc, err := c.document(rec)
	if err != nil {
		return err
	}
	path := scope.path(c.kind.collection)
	if err := c.store.backend.Put(ctx, path, doc); err != nil {
		c.store.logger.ErrorContext(ctx, "failed to persist record", "path", path.String(), "id", doc.ID, "error", err)
		return fmt.Errorf("%w: put %s/%s: %w", ErrUnavailable, path, doc.ID, err)
	}
	return nil
}

func (c *Collection[T]) document(rec T) (docstore.Document, error) {
	fields, err := encode(rec)
	if err != nil {
		return docstore.Document{}, err
	}
	meta := c.kind.meta(&rec)
	doc := docstore.Document{
		ID:        meta.ID,
		Fields:    fields,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.CreatedAt,
	}
	if meta.UpdatedAt != nil {
		doc.UpdatedAt = *meta.UpdatedAt
	}
	return doc, nil
}

func encode[T any](rec T) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return fields, nil
}

// jsonFields returns the JSON names of the fields of T, including the ones
// promoted from embedded structs such as records.Meta.
func jsonFields[T any]() map[string]struct{} {
	out := map[string]struct{}{}
	collectFields(reflect.TypeFor[T](), out)
	return out
}

func collectFields(t reflect.Type, into map[string]struct{}) {
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if f.Anonymous && tag == "" {
			collectFields(f.Type, into)
			continue
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		into[name] = struct{}{}
	}
}

func decode[T any](fields map[string]any) (T, error) {
	var rec T
	raw, err := json.Marshal(fields)
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(raw, &rec)
	return rec, err
}
