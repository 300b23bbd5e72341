package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"lawdesk/internal/records"
)

// Session carries a single global active context for single-window clients
// such as the CLI. Every operation started through a Session holds a read
// lock until it finishes, and SetActiveContext takes the write lock, so a
// context switch waits for in-flight calls instead of letting a late write
// land in the newly selected namespace.
//
// Multi-user servers must not share a Session; they pass a Scope per call.
type Session struct {
	store *Store

	mu     sync.RWMutex
	userID int
	teamID uuid.UUID
}

func (s *Store) NewSession() *Session {
	return &Session{store: s}
}

// SignIn sets the current actor and resets the context to solo.
func (s *Session) SignIn(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.teamID = uuid.Nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = 0
	s.teamID = uuid.Nil
}

// SetActiveContext switches every later call to the team namespace, or back
// to solo when teamID is uuid.Nil.
func (s *Session) SetActiveContext(teamID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamID = teamID
}

func (s *Session) Scope() Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Scope{UserID: s.userID, TeamID: s.teamID}
}

func (s *Session) acquire() (Scope, func()) {
	s.mu.RLock()
	return Scope{UserID: s.userID, TeamID: s.teamID}, s.mu.RUnlock
}

func (s *Session) Cases() *Collection[records.Case] {
	return newCollection(s.store, caseKind, s.acquire)
}

func (s *Session) Events() *Collection[records.CalendarEvent] {
	return newCollection(s.store, eventKind, s.acquire)
}

func (s *Session) Revenues() *Collection[records.Revenue] {
	return newCollection(s.store, revenueKind, s.acquire)
}

func (s *Session) Expenses() *Collection[records.Expense] {
	return newCollection(s.store, expenseKind, s.acquire)
}

func (s *Session) Documents() *Collection[records.Document] {
	return newCollection(s.store, documentKind, s.acquire)
}

func (s *Session) Lawyers() *Collection[records.Lawyer] {
	return newCollection(s.store, lawyerKind, s.acquire)
}

func (s *Session) Employees() *Collection[records.Employee] {
	return newCollection(s.store, employeeKind, s.acquire)
}

func (s *Session) FinancialSummary(ctx context.Context) Summary {
	scope, release := s.acquire()
	defer release()
	return s.store.FinancialSummary(ctx, scope)
}

func (s *Session) GeneralStats(ctx context.Context) Stats {
	scope, release := s.acquire()
	defer release()
	return s.store.GeneralStats(ctx, scope)
}
