// Package backup dumps a whole context to one JSON document and restores it
// by replacing each collection. Before a restore the current state is
// uploaded as a safety snapshot.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"lawdesk/internal/records"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

// Version is the snapshot format written by Export.
const Version = 1

var (
	ErrNotConfirmed       = errors.New("import must be confirmed")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// Snapshot is the export format. On import a nil array leaves its collection
// untouched; an empty array clears it.
type Snapshot struct {
	Version    int                     `json:"version"`
	ExportedAt time.Time               `json:"exportedAt"`
	Cases      []records.Case          `json:"cases"`
	Events     []records.CalendarEvent `json:"events"`
	Revenues   []records.Revenue       `json:"revenues"`
	Expenses   []records.Expense       `json:"expenses"`
	Documents  []records.Document      `json:"documents"`
	Lawyers    []records.Lawyer        `json:"lawyers"`
	Employees  []records.Employee      `json:"employees"`
}

// Counts maps collection name to record count.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		store.CollectionCases:     len(s.Cases),
		store.CollectionEvents:    len(s.Events),
		store.CollectionRevenues:  len(s.Revenues),
		store.CollectionExpenses:  len(s.Expenses),
		store.CollectionDocuments: len(s.Documents),
		store.CollectionLawyers:   len(s.Lawyers),
		store.CollectionEmployees: len(s.Employees),
	}
}

// Encode writes the snapshot as indented JSON.
func Encode(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Decode reads a snapshot and checks its version.
func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Version)
	}
	return &snap, nil
}

// SnapshotStore keeps safety snapshots. *storage.S3Service implements it.
type SnapshotStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (*storage.UploadResult, error)
	GetObject(ctx context.Context, key string) (*storage.DownloadResult, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

type Service struct {
	store   *store.Store
	objects SnapshotStore
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the backup service. objects may be nil, in which case
// imports run without a safety snapshot.
func NewService(st *store.Store, objects SnapshotStore, opts ...Option) *Service {
	s := &Service{store: st, objects: objects, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export reads every collection of scope. A backend failure fails the
// export with store.ErrUnavailable rather than producing empty arrays.
func (s *Service) Export(ctx context.Context, scope store.Scope) (*Snapshot, error) {
	if !scope.Authenticated() {
		return nil, store.ErrUnauthenticated
	}
	snap := &Snapshot{Version: Version, ExportedAt: s.now().UTC().Truncate(time.Second)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { snap.Cases, err = s.store.Cases(scope).All(gctx); return })
	g.Go(func() (err error) { snap.Events, err = s.store.Events(scope).All(gctx); return })
	g.Go(func() (err error) { snap.Revenues, err = s.store.Revenues(scope).All(gctx); return })
	g.Go(func() (err error) { snap.Expenses, err = s.store.Expenses(scope).All(gctx); return })
	g.Go(func() (err error) { snap.Documents, err = s.store.Documents(scope).All(gctx); return })
	g.Go(func() (err error) { snap.Lawyers, err = s.store.Lawyers(scope).All(gctx); return })
	g.Go(func() (err error) { snap.Employees, err = s.store.Employees(scope).All(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export %s: %w", scope, err)
	}
	return snap, nil
}

type ImportOptions struct {
	// Confirm must be set; an import overwrites whole collections.
	Confirm bool
}

type ImportResult struct {
	SafetySnapshot string         `json:"safetySnapshot,omitempty"`
	Replaced       map[string]int `json:"replaced"`
}

// Import overwrites the collections of scope with the arrays in snap. There
// is no field-level merge. Every present array is validated before anything
// is written, so only a backend failure can leave earlier collections
// replaced.
func (s *Service) Import(ctx context.Context, scope store.Scope, snap *Snapshot, opts ImportOptions) (*ImportResult, error) {
	if !scope.Authenticated() {
		return nil, store.ErrUnauthenticated
	}
	if !opts.Confirm {
		return nil, ErrNotConfirmed
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Version)
	}

	steps := []struct {
		name     string
		present  bool
		validate func() error
		replace  func() error
	}{
		{store.CollectionCases, snap.Cases != nil,
			func() error { return s.store.Cases(scope).Validate(snap.Cases) },
			func() error { return s.store.Cases(scope).Replace(ctx, snap.Cases) }},
		{store.CollectionEvents, snap.Events != nil,
			func() error { return s.store.Events(scope).Validate(snap.Events) },
			func() error { return s.store.Events(scope).Replace(ctx, snap.Events) }},
		{store.CollectionRevenues, snap.Revenues != nil,
			func() error { return s.store.Revenues(scope).Validate(snap.Revenues) },
			func() error { return s.store.Revenues(scope).Replace(ctx, snap.Revenues) }},
		{store.CollectionExpenses, snap.Expenses != nil,
			func() error { return s.store.Expenses(scope).Validate(snap.Expenses) },
			func() error { return s.store.Expenses(scope).Replace(ctx, snap.Expenses) }},
		{store.CollectionDocuments, snap.Documents != nil,
			func() error { return s.store.Documents(scope).Validate(snap.Documents) },
			func() error { return s.store.Documents(scope).Replace(ctx, snap.Documents) }},
		{store.CollectionLawyers, snap.Lawyers != nil,
			func() error { return s.store.Lawyers(scope).Validate(snap.Lawyers) },
			func() error { return s.store.Lawyers(scope).Replace(ctx, snap.Lawyers) }},
		{store.CollectionEmployees, snap.Employees != nil,
			func() error { return s.store.Employees(scope).Validate(snap.Employees) },
			func() error { return s.store.Employees(scope).Replace(ctx, snap.Employees) }},
	}
	for _, step := range steps {
		if !step.present {
			continue
		}
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("import %s: %w", step.name, err)
		}
	}

	result := &ImportResult{Replaced: map[string]int{}}
	key, err := s.safetySnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	result.SafetySnapshot = key

	counts := snap.Counts()
	for _, step := range steps {
		if !step.present {
			continue
		}
		if err := step.replace(); err != nil {
			return result, fmt.Errorf("import %s: %w", step.name, err)
		}
		result.Replaced[step.name] = counts[step.name]
	}

	s.logger.InfoContext(ctx, "imported snapshot", "scope", scope.String(), "safety_snapshot", key, "replaced", result.Replaced)
	return result, nil
}

func (s *Service) safetySnapshot(ctx context.Context, scope store.Scope) (string, error) {
	if s.objects == nil {
		s.logger.WarnContext(ctx, "object storage not configured, importing without a safety snapshot", "scope", scope.String())
		return "", nil
	}
	current, err := s.Export(ctx, scope)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(current)
	if err != nil {
		return "", fmt.Errorf("encode safety snapshot: %w", err)
	}

	id := ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy())
	key := fmt.Sprintf("%s/%s.json", prefix(scope), id)
	if _, err := s.objects.PutObject(ctx, key, data, "application/json", map[string]string{
		"namespace": scope.Namespace(),
		"user-id":   fmt.Sprint(scope.UserID),
	}); err != nil {
		return "", fmt.Errorf("upload safety snapshot: %w", err)
	}
	return key, nil
}

func prefix(scope store.Scope) string {
	return "backups/" + scope.Namespace()
}

// Snapshots lists the safety snapshots of scope, oldest first.
func (s *Service) Snapshots(ctx context.Context, scope store.Scope) ([]storage.ObjectInfo, error) {
	if s.objects == nil {
		return []storage.ObjectInfo{}, nil
	}
	return s.objects.List(ctx, prefix(scope)+"/")
}

// Load fetches a stored snapshot of scope by key.
func (s *Service) Load(ctx context.Context, scope store.Scope, key string) (*Snapshot, error) {
	if s.objects == nil {
		return nil, errors.New("object storage is not configured")
	}
	p := prefix(scope) + "/"
	if !strings.HasPrefix(key, p) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	obj, err := s.objects.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(obj.Data))
}
