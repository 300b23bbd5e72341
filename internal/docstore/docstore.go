// Package docstore is the hierarchical document backend under the scoped
// record store. Documents live in collections addressed by a Path; the
// backend knows nothing about users, teams or record types.
package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Path addresses one collection, e.g. users/42/cases or teams/<uuid>/events.
type Path struct {
	Namespace  string
	Collection string
}

func (p Path) String() string {
	return p.Namespace + "/" + p.Collection
}

// Document is a single stored record. Fields holds the record as decoded
// JSON.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Backend persists documents. Each call is atomic for the documents it
// touches; there are no multi-collection transactions.
type Backend interface {
	List(ctx context.Context, path Path) ([]Document, error)
	// Get returns ErrNotFound when the id is absent from path.
	Get(ctx context.Context, path Path, id string) (*Document, error)
	// Put creates or overwrites the document with doc.ID.
	Put(ctx context.Context, path Path, doc Document) error
	// Delete returns ErrNotFound when the id is absent from path.
	Delete(ctx context.Context, path Path, id string) error
	// Replace drops every document in path and stores docs instead.
	Replace(ctx context.Context, path Path, docs []Document) error
}
