// Package store is the scoped record store. Every CRUD call resolves to a
// solo namespace (one user) or a team namespace, and this package is the only
// place that turns a scope into a backend path.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"lawdesk/internal/docstore"
	"lawdesk/internal/records"
)

var (
	// ErrUnauthenticated means there is no signed-in actor. Writes fail with
	// it immediately.
	ErrUnauthenticated = errors.New("no authenticated user")
	// ErrUnavailable wraps backend failures on writes.
	ErrUnavailable = errors.New("storage backend unavailable")
)

// ValidationError lists the fields that failed validation, keyed by JSON
// name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Collection names under a namespace.
const (
	CollectionCases     = "cases"
	CollectionEvents    = "events"
	CollectionRevenues  = "revenues"
	CollectionExpenses  = "expenses"
	CollectionDocuments = "documents"
	CollectionLawyers   = "lawyers"
	CollectionEmployees = "employees"
)

// Collections in backup/export order.
var Collections = []string{
	CollectionCases,
	CollectionEvents,
	CollectionRevenues,
	CollectionExpenses,
	CollectionDocuments,
	CollectionLawyers,
	CollectionEmployees,
}

// Scope selects the namespace an operation resolves against. A zero TeamID
// means the user's solo namespace.
type Scope struct {
	UserID int
	TeamID uuid.UUID
}

func Solo(userID int) Scope {
	return Scope{UserID: userID}
}

func Team(userID int, teamID uuid.UUID) Scope {
	return Scope{UserID: userID, TeamID: teamID}
}

func (s Scope) IsTeam() bool {
	return s.TeamID != uuid.Nil
}

func (s Scope) Authenticated() bool {
	return s.UserID > 0
}

// Namespace is the backend prefix for the scope.
func (s Scope) Namespace() string {
	if s.IsTeam() {
		return "teams/" + s.TeamID.String()
	}
	return "users/" + strconv.Itoa(s.UserID)
}

func (s Scope) path(collection string) docstore.Path {
	return docstore.Path{Namespace: s.Namespace(), Collection: collection}
}

func (s Scope) String() string {
	return s.Namespace()
}

// Store hands out collections bound to a scope.
type Store struct {
	backend  docstore.Backend
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend docstore.Backend, opts ...Option) *Store {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Store{
		backend:  backend,
		logger:   slog.Default(),
		validate: v,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) clock() time.Time {
	// Postgres keeps microseconds; truncate so a roundtrip is lossless.
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) check(rec any) error {
	err := s.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fieldPath(fe)] = describe(fe)
	}
	return out
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "needs at least " + fe.Param() + " item(s)"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must use the layout " + fe.Param()
	case "email":
		return "must be a valid email address"
	}
	return "failed the " + fe.Tag() + " check"
}

func (s *Store) fixed(scope Scope) scopeFunc {
	return func() (Scope, func()) { return scope, func() {} }
}

func (s *Store) Cases(scope Scope) *Collection[records.Case] {
	return newCollection(s, caseKind, s.fixed(scope))
}

func (s *Store) Events(scope Scope) *Collection[records.CalendarEvent] {
	return newCollection(s, eventKind, s.fixed(scope))
}

func (s *Store) Revenues(scope Scope) *Collection[records.Revenue] {
	return newCollection(s, revenueKind, s.fixed(scope))
}

func (s *Store) Expenses(scope Scope) *Collection[records.Expense] {
	return newCollection(s, expenseKind, s.fixed(scope))
}

func (s *Store) Documents(scope Scope) *Collection[records.Document] {
	return newCollection(s, documentKind, s.fixed(scope))
}

func (s *Store) Lawyers(scope Scope) *Collection[records.Lawyer] {
	return newCollection(s, lawyerKind, s.fixed(scope))
}

func (s *Store) Employees(scope Scope) *Collection[records.Employee] {
	return newCollection(s, employeeKind, s.fixed(scope))
}
