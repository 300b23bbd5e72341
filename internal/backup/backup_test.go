package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk/internal/docstore"
	"lawdesk/internal/records"
	"lawdesk/internal/storage"
	"lawdesk/internal/store"
)

var fixedNow = time.Date(2024, time.April, 10, 9, 30, 0, 0, time.UTC)

type memoryObjects struct {
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (m *memoryObjects) PutObject(_ context.Context, key string, data []byte, contentType string, _ map[string]string) (*storage.UploadResult, error) {
	m.objects[key] = bytes.Clone(data)
	return &storage.UploadResult{Key: key, FileHash: storage.Hash(data), FileSize: int64(len(data)), MimeType: contentType}, nil
}

func (m *memoryObjects) GetObject(_ context.Context, key string) (*storage.DownloadResult, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.DownloadResult{Data: data}, nil
}

func (m *memoryObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	out := []storage.ObjectInfo{}
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func newTestService(t *testing.T) (*Service, *store.Store, *memoryObjects) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(docstore.NewMemory(), store.WithLogger(logger), store.WithClock(func() time.Time { return fixedNow }))
	objects := newMemoryObjects()
	return NewService(st, objects, WithLogger(logger), WithClock(func() time.Time { return fixedNow })), st, objects
}

func seed(t *testing.T, st *store.Store, scope store.Scope) {
	t.Helper()
	ctx := context.Background()
	_, err := st.Cases(scope).Save(ctx, records.Case{
		Name: "Silva v. Acme", Number: "1", Client: "Maria Silva",
		ResponsibleLawyers: []string{"Ana Souza"}, StartDate: "2024-02-01",
	})
	require.NoError(t, err)
	_, err = st.Revenues(scope).Save(ctx, records.Revenue{
		Date: "2024-03-05", Amount: 1000, Source: "Fees", Category: "Honorarium", ResponsibleMembers: []string{"Ana Souza"},
	})
	require.NoError(t, err)
	_, err = st.Employees(scope).Save(ctx, records.Employee{FullName: "Bruno Lima", CPF: "2", Position: "Clerk"})
	require.NoError(t, err)
}

func TestSnapshotFormat(t *testing.T) {
	snap := &Snapshot{
		Version:    Version,
		ExportedAt: fixedNow,
		Cases: []records.Case{{
			Meta: records.Meta{
				ID:        "c0a8012e-0000-4000-8000-000000000001",
				UserID:    7,
				CreatedAt: time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC),
			},
			Name:               "Silva v. Acme",
			Number:             "0001234-56.2024.8.26.0100",
			Client:             "Maria Silva",
			OpposingParty:      "Acme Ltda",
			Court:              "1st Civil Court",
			ResponsibleLawyers: []string{"Ana Souza"},
			StartDate:          "2024-02-01",
			Status:             records.CaseInProgress,
			Description:        "Breach of contract",
		}},
		Events: []records.CalendarEvent{},
		Revenues: []records.Revenue{{
			Meta: records.Meta{
				ID:        "c0a8012e-0000-4000-8000-000000000002",
				UserID:    7,
				CreatedAt: time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
			},
			Date:               "2024-03-05",
			Amount:             1000,
			Source:             "Fees",
			Category:           "Honorarium",
			ResponsibleMembers: []string{"Ana Souza"},
		}},
		Expenses:  []records.Expense{},
		Documents: []records.Document{},
		Lawyers:   []records.Lawyer{},
		Employees: []records.Employee{},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))

	g := goldie.New(t)
	g.Assert(t, "snapshot", buf.Bytes())

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Cases[0].Name, decoded.Cases[0].Name)
	assert.True(t, decoded.ExportedAt.Equal(fixedNow))
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version": 2, "cases": []}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestExportImportIntoTeam(t *testing.T) {
	ctx := context.Background()
	svc, st, objects := newTestService(t)
	solo := store.Solo(7)
	team := store.Team(7, uuid.New())
	seed(t, st, solo)

	snap, err := svc.Export(ctx, solo)
	require.NoError(t, err)
	assert.Equal(t, Version, snap.Version)
	assert.Len(t, snap.Cases, 1)
	assert.Len(t, snap.Revenues, 1)
	assert.Empty(t, snap.Events)
	assert.NotNil(t, snap.Events)

	// Something in the team that the import will overwrite.
	_, err = st.Employees(team).Save(ctx, records.Employee{FullName: "Old", CPF: "9", Position: "Intern"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap))
	decoded, err := Decode(&buf)
	require.NoError(t, err)

	res, err := svc.Import(ctx, team, decoded, ImportOptions{Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replaced[store.CollectionCases])
	assert.Equal(t, 0, res.Replaced[store.CollectionEvents])

	cases := st.Cases(team).List(ctx)
	require.Len(t, cases, 1)
	assert.Equal(t, snap.Cases[0].ID, cases[0].ID)
	assert.Equal(t, team.TeamID.String(), cases[0].TeamID)

	employees := st.Employees(team).List(ctx)
	require.Len(t, employees, 1)
	assert.Equal(t, "Bruno Lima", employees[0].FullName)

	// The safety snapshot holds the team state from before the import.
	require.True(t, strings.HasPrefix(res.SafetySnapshot, "backups/teams/"+team.TeamID.String()+"/"))
	var safety Snapshot
	require.NoError(t, json.Unmarshal(objects.objects[res.SafetySnapshot], &safety))
	require.Len(t, safety.Employees, 1)
	assert.Equal(t, "Old", safety.Employees[0].FullName)
	assert.Empty(t, safety.Cases)

	listed, err := svc.Snapshots(ctx, team)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	restored, err := svc.Load(ctx, team, listed[0].Key)
	require.NoError(t, err)
	assert.Equal(t, "Old", restored.Employees[0].FullName)

	_, err = svc.Load(ctx, solo, listed[0].Key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImportRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	svc, st, objects := newTestService(t)
	scope := store.Solo(1)
	seed(t, st, scope)

	_, err := svc.Import(ctx, scope, &Snapshot{Version: Version, Cases: []records.Case{}}, ImportOptions{})
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Len(t, st.Cases(scope).List(ctx), 1)
	assert.Empty(t, objects.objects)

	_, err = svc.Import(ctx, scope, &Snapshot{Version: 3}, ImportOptions{Confirm: true})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = svc.Import(ctx, store.Scope{}, &Snapshot{Version: Version}, ImportOptions{Confirm: true})
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
}

func TestImportLeavesMissingArraysAlone(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	scope := store.Solo(1)
	seed(t, st, scope)

	snap, err := Decode(strings.NewReader(`{"version": 1, "cases": []}`))
	require.NoError(t, err)
	res, err := svc.Import(ctx, scope, snap, ImportOptions{Confirm: true})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{store.CollectionCases: 0}, res.Replaced)
	assert.Empty(t, st.Cases(scope).List(ctx))
	assert.Len(t, st.Revenues(scope).List(ctx), 1)
	assert.Len(t, st.Employees(scope).List(ctx), 1)
}

func TestImportRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	scope := store.Solo(1)
	seed(t, st, scope)

	snap := &Snapshot{Version: Version, Cases: []records.Case{{Name: "no lawyers", Number: "2", Client: "X", StartDate: "2024-01-01"}}}
	_, err := svc.Import(ctx, scope, snap, ImportOptions{Confirm: true})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, st.Cases(scope).List(ctx), 1)
}

func TestImportValidatesEveryArrayFirst(t *testing.T) {
	ctx := context.Background()
	svc, st, objects := newTestService(t)
	scope := store.Solo(1)
	seed(t, st, scope)

	// Cases come first in import order; the bad employee must still stop
	// the import before cases are cleared.
	snap := &Snapshot{
		Version:   Version,
		Cases:     []records.Case{},
		Employees: []records.Employee{{FullName: ""}},
	}
	_, err := svc.Import(ctx, scope, snap, ImportOptions{Confirm: true})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "employees[0]")

	assert.Len(t, st.Cases(scope).List(ctx), 1)
	assert.Len(t, st.Employees(scope).List(ctx), 1)
	assert.Empty(t, objects.objects)
}

type unavailableBackend struct {
	docstore.Backend
}

func (unavailableBackend) List(context.Context, docstore.Path) ([]docstore.Document, error) {
	return nil, errors.New("connection refused")
}

func TestExportFailsWhenBackendIsDown(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(unavailableBackend{Backend: docstore.NewMemory()}, store.WithLogger(logger))
	objects := newMemoryObjects()
	svc := NewService(st, objects, WithLogger(logger))

	snap, err := svc.Export(ctx, store.Solo(1))
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	// Without a trustworthy safety snapshot the import does not start.
	_, err = svc.Import(ctx, store.Solo(1), &Snapshot{Version: Version, Cases: []records.Case{}}, ImportOptions{Confirm: true})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, objects.objects)
}

func TestImportWithoutObjectStorage(t *testing.T) {
	ctx := context.Background()
	st := store.New(docstore.NewMemory(), store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := NewService(st, nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res, err := svc.Import(ctx, store.Solo(1), &Snapshot{Version: Version, Lawyers: []records.Lawyer{}}, ImportOptions{Confirm: true})
	require.NoError(t, err)
	assert.Empty(t, res.SafetySnapshot)

	listed, err := svc.Snapshots(ctx, store.Solo(1))
	require.NoError(t, err)
	assert.Empty(t, listed)
}
