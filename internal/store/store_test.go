package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk/internal/docstore"
	"lawdesk/internal/records"
)

var fixedNow = time.Date(2024, time.April, 10, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, backend docstore.Backend) *Store {
	t.Helper()
	if backend == nil {
		backend = docstore.NewMemory()
	}
	return New(backend,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func sampleCase() records.Case {
	return records.Case{
		Name:               "Silva v. Acme",
		Number:             "0001234-56.2024.8.26.0100",
		Client:             "Maria Silva",
		OpposingParty:      "Acme Ltda",
		Court:              "1st Civil Court",
		ResponsibleLawyers: []string{"Ana Souza"},
		StartDate:          "2024-02-01",
		Description:        "Breach of contract",
	}
}

func sampleEvent() records.CalendarEvent {
	return records.CalendarEvent{
		Title:           "Hearing",
		Date:            "2024-04-20",
		Time:            "14:00",
		Category:        records.CategoryHearing,
		Priority:        records.PriorityHigh,
		AssignedLawyers: []string{"Ana Souza"},
	}
}

func TestSaveThenGetReturnsStoredRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	cases := s.Cases(Solo(7))

	saved, err := cases.Save(ctx, sampleCase())
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, 7, saved.UserID)
	assert.Empty(t, saved.TeamID)
	assert.True(t, saved.CreatedAt.Equal(fixedNow))
	assert.Equal(t, records.CaseInProgress, saved.Status)

	got := cases.Get(ctx, saved.ID)
	require.NotNil(t, got)

	want := sampleCase()
	want.Meta = got.Meta
	want.Status = records.CaseInProgress
	assert.Equal(t, want, *got)
	assert.Equal(t, saved.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(fixedNow))
}

func TestSaveStampsTeam(t *testing.T) {
	team := uuid.New()
	saved, err := newTestStore(t, nil).Events(Team(3, team)).Save(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, 3, saved.UserID)
	assert.Equal(t, team.String(), saved.TeamID)
}

func TestSaveRequiresAuthenticatedUser(t *testing.T) {
	_, err := newTestStore(t, nil).Cases(Scope{}).Save(context.Background(), sampleCase())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = newTestStore(t, nil).Cases(Scope{}).Update(context.Background(), "x", Patch{"name": "y"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = newTestStore(t, nil).Cases(Scope{}).Delete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSaveRejectsEmptyLawyerList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	c := sampleCase()
	c.ResponsibleLawyers = []string{}
	_, err := s.Cases(Solo(1)).Save(ctx, c)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "responsibleLawyers")

	e := sampleEvent()
	e.AssignedLawyers = nil
	_, err = s.Events(Solo(1)).Save(ctx, e)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "assignedLawyers")

	assert.Empty(t, s.Cases(Solo(1)).List(ctx))
	assert.Empty(t, s.Events(Solo(1)).List(ctx))
}

func TestUpdateCannotEmptyLawyerList(t *testing.T) {
	ctx := context.Background()
	cases := newTestStore(t, nil).Cases(Solo(1))
	saved, err := cases.Save(ctx, sampleCase())
	require.NoError(t, err)

	_, err = cases.Update(ctx, saved.ID, Patch{"responsibleLawyers": []any{}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, []string{"Ana Souza"}, cases.Get(ctx, saved.ID).ResponsibleLawyers)
}

func TestSaveRejectsNonPositiveAmount(t *testing.T) {
	_, err := newTestStore(t, nil).Revenues(Solo(1)).Save(context.Background(), records.Revenue{
		Date: "2024-03-01", Amount: 0, Source: "Fees", Category: "Honorarium", ResponsibleMembers: []string{"Ana Souza"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be greater than 0", verr.Fields["amount"])
}

func TestUpdateReplacesOnlyGivenFields(t *testing.T) {
	ctx := context.Background()
	cases := newTestStore(t, nil).Cases(Solo(1))
	saved, err := cases.Save(ctx, sampleCase())
	require.NoError(t, err)

	updated, err := cases.Update(ctx, saved.ID, Patch{"court": "2nd Civil Court", "notes": "appeal filed"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.NotNil(t, updated.UpdatedAt)

	want := *saved
	want.Court = "2nd Civil Court"
	want.Notes = "appeal filed"
	want.UpdatedAt = updated.UpdatedAt
	assert.Equal(t, want.Court, updated.Court)
	assert.Equal(t, want.Notes, updated.Notes)
	assert.Equal(t, want.Name, updated.Name)
	assert.Equal(t, want.Client, updated.Client)
	assert.Equal(t, want.ResponsibleLawyers, updated.ResponsibleLawyers)
	assert.Equal(t, want.ID, updated.ID)
	assert.True(t, want.CreatedAt.Equal(updated.CreatedAt))

	assert.Equal(t, "2nd Civil Court", cases.Get(ctx, saved.ID).Court)
}

func TestUpdateRejectsUnknownKeys(t *testing.T) {
	ctx := context.Background()
	revenues := newTestStore(t, nil).Revenues(Solo(1))
	saved, err := revenues.Save(ctx, records.Revenue{
		Date: "2024-03-01", Amount: 10, Source: "Fees", Category: "Honorarium", ResponsibleMembers: []string{"Ana Souza"},
	})
	require.NoError(t, err)

	// Keys must match the JSON names exactly; a case variant would be
	// shadowed by the stored key during the merge.
	_, err = revenues.Update(ctx, saved.ID, Patch{"Amount": 99.0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Amount")
	assert.Equal(t, 10.0, revenues.Get(ctx, saved.ID).Amount)

	_, err = revenues.Update(ctx, saved.ID, Patch{"court": "x"})
	require.ErrorAs(t, err, &verr)

	updated, err := revenues.Update(ctx, saved.ID, Patch{"amount": 99.0})
	require.NoError(t, err)
	assert.Equal(t, 99.0, updated.Amount)
}

func TestSaveRejectsEmptyResponsibleMembers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, err := s.Revenues(Solo(1)).Save(ctx, records.Revenue{Date: "2024-03-01", Amount: 10, Source: "Fees", Category: "Honorarium"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "responsibleMembers")

	_, err = s.Expenses(Solo(1)).Save(ctx, records.Expense{Date: "2024-03-01", Amount: 10, Type: "Fixed", Category: "Rent", ResponsibleMembers: []string{}})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "responsibleMembers")
}

func TestUpdateMissingReturnsNil(t *testing.T) {
	got, err := newTestStore(t, nil).Cases(Solo(1)).Update(context.Background(), "missing", Patch{"name": "x"})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateRejectsMetaFields(t *testing.T) {
	ctx := context.Background()
	cases := newTestStore(t, nil).Cases(Solo(1))
	saved, err := cases.Save(ctx, sampleCase())
	require.NoError(t, err)

	for _, key := range []string{"id", "userId", "teamId", "createdAt"} {
		_, err := cases.Update(ctx, saved.ID, Patch{key: "x"})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, key)
	}
}

func TestCaseStatusOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	cases := newTestStore(t, nil).Cases(Solo(1))
	saved, err := cases.Save(ctx, sampleCase())
	require.NoError(t, err)

	done, err := cases.Update(ctx, saved.ID, Patch{"status": "Completed"})
	require.NoError(t, err)
	assert.Equal(t, records.CaseCompleted, done.Status)

	_, err = cases.Update(ctx, saved.ID, Patch{"status": "InProgress"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")
}

func TestDeleteThenGet(t *testing.T) {
	ctx := context.Background()
	lawyers := newTestStore(t, nil).Lawyers(Solo(1))
	saved, err := lawyers.Save(ctx, records.Lawyer{FullName: "Ana Souza", CPF: "123", BarNumber: "SP-1", Commission: 30})
	require.NoError(t, err)

	ok, err := lawyers.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, lawyers.Get(ctx, saved.ID))

	ok, err = lawyers.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContextIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	teamA, teamB := uuid.New(), uuid.New()

	inA, err := s.Cases(Team(1, teamA)).Save(ctx, sampleCase())
	require.NoError(t, err)
	inSolo, err := s.Cases(Solo(1)).Save(ctx, sampleCase())
	require.NoError(t, err)

	assert.Len(t, s.Cases(Team(1, teamA)).List(ctx), 1)
	assert.Len(t, s.Cases(Solo(1)).List(ctx), 1)
	assert.Empty(t, s.Cases(Team(1, teamB)).List(ctx))
	assert.Empty(t, s.Cases(Solo(2)).List(ctx))

	assert.Nil(t, s.Cases(Solo(1)).Get(ctx, inA.ID))
	assert.Nil(t, s.Cases(Team(1, teamB)).Get(ctx, inA.ID))
	assert.Nil(t, s.Cases(Team(1, teamA)).Get(ctx, inSolo.ID))

	// Another member of team A sees the shared record.
	assert.NotNil(t, s.Cases(Team(2, teamA)).Get(ctx, inA.ID))

	ok, err := s.Cases(Team(1, teamB)).Delete(ctx, inA.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	updated, err := s.Cases(Solo(1)).Update(ctx, inA.ID, Patch{"notes": "x"})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	scope := Solo(1)

	for _, name := range []string{"carla", "Bruno", "ana"} {
		_, err := s.Employees(scope).Save(ctx, records.Employee{FullName: name, CPF: "1", Position: "Clerk"})
		require.NoError(t, err)
	}
	var names []string
	for _, e := range s.Employees(scope).List(ctx) {
		names = append(names, e.FullName)
	}
	assert.Equal(t, []string{"ana", "Bruno", "carla"}, names)

	for _, date := range []string{"2024-01-05", "2024-03-01", "2024-02-10"} {
		_, err := s.Expenses(scope).Save(ctx, records.Expense{Date: date, Amount: 10, Type: "Fixed", Category: "Rent", ResponsibleMembers: []string{"Ana Souza"}})
		require.NoError(t, err)
	}
	var dates []string
	for _, e := range s.Expenses(scope).List(ctx) {
		dates = append(dates, e.Date)
	}
	assert.Equal(t, []string{"2024-03-01", "2024-02-10", "2024-01-05"}, dates)
}

func TestCasesNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	s := New(docstore.NewMemory(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { now = now.Add(time.Minute); return now }),
	)
	first, err := s.Cases(Solo(1)).Save(ctx, sampleCase())
	require.NoError(t, err)
	second, err := s.Cases(Solo(1)).Save(ctx, sampleCase())
	require.NoError(t, err)

	list := s.Cases(Solo(1)).List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

type failingBackend struct{ err error }

func (f failingBackend) List(context.Context, docstore.Path) ([]docstore.Document, error) {
	return nil, f.err
}

func (f failingBackend) Get(context.Context, docstore.Path, string) (*docstore.Document, error) {
	return nil, f.err
}

func (f failingBackend) Put(context.Context, docstore.Path, docstore.Document) error { return f.err }

func (f failingBackend) Delete(context.Context, docstore.Path, string) error { return f.err }

func (f failingBackend) Replace(context.Context, docstore.Path, []docstore.Document) error {
	return f.err
}

func TestBackendFailureDegrades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, failingBackend{err: errors.New("connection refused")})
	cases := s.Cases(Solo(1))

	assert.NotNil(t, cases.List(ctx))
	assert.Empty(t, cases.List(ctx))
	assert.Nil(t, cases.Get(ctx, "x"))

	saved, err := cases.Save(ctx, sampleCase())
	assert.Nil(t, saved)
	assert.ErrorIs(t, err, ErrUnavailable)

	ok, err := cases.Delete(ctx, "x")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnavailable)

	updated, err := cases.Update(ctx, "x", Patch{"name": "y"})
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, Stats{}, s.GeneralStats(ctx, Solo(1)))

	all, err := cases.All(ctx)
	assert.Nil(t, all)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAllReadsScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	_, err := s.Cases(Solo(1)).Save(ctx, sampleCase())
	require.NoError(t, err)

	all, err := s.Cases(Solo(1)).All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.Cases(Scope{}).All(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestReplaceRestampsScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	team := uuid.New()

	src, err := s.Cases(Solo(1)).Save(ctx, sampleCase())
	require.NoError(t, err)

	require.NoError(t, s.Cases(Team(2, team)).Replace(ctx, []records.Case{*src}))

	got := s.Cases(Team(2, team)).Get(ctx, src.ID)
	require.NotNil(t, got)
	assert.Equal(t, team.String(), got.TeamID)
	assert.Equal(t, 1, got.UserID)
	assert.Equal(t, src.Name, got.Name)

	// Replace really is a full overwrite.
	require.NoError(t, s.Cases(Team(2, team)).Replace(ctx, nil))
	assert.Empty(t, s.Cases(Team(2, team)).List(ctx))
}

func TestReplaceValidates(t *testing.T) {
	bad := sampleCase()
	bad.ResponsibleLawyers = nil
	err := newTestStore(t, nil).Cases(Solo(1)).Replace(context.Background(), []records.Case{sampleCase(), bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "cases[1]")
	assert.ErrorAs(t, newTestStore(t, nil).Cases(Solo(1)).Validate([]records.Case{bad}), &verr)
	assert.NoError(t, newTestStore(t, nil).Cases(Solo(1)).Validate([]records.Case{sampleCase()}))
}
