package read_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/dcsp-io/dcsp/internal/commitlog"
	"github.com/dcsp-io/dcsp/internal/config"
	"github.com/dcsp-io/dcsp/internal/envelope"
	"github.com/dcsp-io/dcsp/internal/kv"
	"github.com/dcsp-io/dcsp/internal/objectstore"
	"github.com/dcsp-io/dcsp/internal/read"
	"github.com/dcsp-io/dcsp/internal/readiness"
	"github.com/dcsp-io/dcsp/internal/rules"
	"github.com/dcsp-io/dcsp/internal/schema"
)

// fakeObjectStore mirrors the orchestrator package's test double: a
// map-backed objectstore.Store standing in for S3Store, which needs a
// real bucket.
type fakeObjectStore struct {
	mu        sync.Mutex
	versioned map[string]objectstore.Snapshot
	latest    map[string]objectstore.Snapshot
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		versioned: make(map[string]objectstore.Snapshot),
		latest:    make(map[string]objectstore.Snapshot),
	}
}

func (f *fakeObjectStore) PutVersion(_ context.Context, datasetID string, version int, snap objectstore.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versioned[fmt.Sprintf("%s/%d", datasetID, version)] = snap

	return nil
}

func (f *fakeObjectStore) GetVersion(_ context.Context, datasetID string, version int) (objectstore.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, ok := f.versioned[fmt.Sprintf("%s/%d", datasetID, version)]
	if !ok {
		return objectstore.Snapshot{}, objectstore.ErrSnapshotNotFound
	}

	return snap, nil
}

func (f *fakeObjectStore) PutLatest(_ context.Context, datasetID string, snap objectstore.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[datasetID] = snap

	return nil
}

func (f *fakeObjectStore) GetLatest(_ context.Context, datasetID string) (objectstore.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, ok := f.latest[datasetID]
	if !ok {
		return objectstore.Snapshot{}, objectstore.ErrSnapshotNotFound
	}

	return snap, nil
}

func rankingsRule(datasetID string, minCount int) *rules.Set {
	return rules.NewSet(rules.Config{
		Rules: []rules.Rule{
			{DatasetID: datasetID, RequiredFields: []string{"rank"}, MinRecordCount: minCount},
		},
	})
}

func putLiveEnvelope(t *testing.T, kvClient kv.Client, datasetID string, version int, recordCount int) {
	t.Helper()

	records := make([]map[string]any, 0, recordCount)
	for i := 0; i < recordCount; i++ {
		records = append(records, map[string]any{"rank": i + 1})
	}

	env := envelope.Wrap(records, envelope.Meta{
		HTTPStatusAtWrite: envelope.HTTPStatusLive,
		LifecycleState:    "live",
		RecordCount:       recordCount,
		ValidationStatus:  "valid",
		DatasetID:         datasetID,
		ExpectedMinCount:  recordCount,
		WrittenAt:         time.Now().UTC(),
		Version:           version,
	})

	body, err := env.Marshal()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, kvClient.PutVersioned(ctx, datasetID, version, body, time.Hour))
	require.NoError(t, kvClient.PutCurrent(ctx, datasetID, version))
}

func TestReadIntegration_ReadyDatasetServesLiveFromKV(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	readyz := readiness.NewService(testDB.Connection)
	commits := commitlog.NewStore(testDB.Connection)
	schemas := schema.NewStore(testDB.Connection)
	kvClient := kv.NewMemoryClient()
	objects := newFakeObjectStore()
	ruleSet := rankingsRule("ds-read-live", 10)

	require.NoError(t, readyz.Transition(ctx, "ds-read-live", readiness.StateReady, "bootstrap"))
	putLiveEnvelope(t, kvClient, "ds-read-live", 1, 10)

	svc := read.NewService(readyz, commits, kvClient, objects, nil, schemas, ruleSet, logger)

	result, err := svc.Read(ctx, "ds-read-live")
	require.NoError(t, err)

	assert.Equal(t, 200, result.HTTPStatus)
	assert.Equal(t, "public, max-age=300, s-maxage=900", result.CacheControl)
	assert.Equal(t, read.SourceKV, result.Source)

	var parsed envelope.Envelope[[]map[string]any]
	require.NoError(t, json.Unmarshal(result.Body, &parsed))
	assert.Len(t, parsed.Data, 10)
}

func TestReadIntegration_InitializingDatasetShortCircuits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	readyz := readiness.NewService(testDB.Connection)
	commits := commitlog.NewStore(testDB.Connection)
	schemas := schema.NewStore(testDB.Connection)
	kvClient := kv.NewMemoryClient()
	objects := newFakeObjectStore()
	ruleSet := rankingsRule("ds-read-init", 10)

	svc := read.NewService(readyz, commits, kvClient, objects, nil, schemas, ruleSet, logger)

	result, err := svc.Read(ctx, "ds-read-init")
	require.NoError(t, err)

	assert.Equal(t, 202, result.HTTPStatus)
	assert.Equal(t, "no-store", result.CacheControl)
	assert.Equal(t, read.SourceNone, result.Source)
}

func TestReadIntegration_KVMissFallsBackToObjectStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	readyz := readiness.NewService(testDB.Connection)
	commits := commitlog.NewStore(testDB.Connection)
	schemas := schema.NewStore(testDB.Connection)
	kvClient := kv.NewMemoryClient()
	objects := newFakeObjectStore()
	ruleSet := rankingsRule("ds-read-fallback", 5)

	require.NoError(t, readyz.Transition(ctx, "ds-read-fallback", readiness.StateReady, "bootstrap"))

	// The commit log has a committed row and current-version pointer, but
	// the KV blob itself has expired/evicted, forcing the object-store path.
	require.NoError(t, commits.CreatePendingCommit(ctx, commitlog.Commit{
		DatasetID: "ds-read-fallback", Version: 1, RecordCount: 5,
		ValidationStatus: "valid", IngestedAt: time.Now().UTC(),
	}))
	require.NoError(t, commits.PromoteCommit(ctx, "ds-read-fallback", 1, commitlog.SchemaInfo{}))

	snapData, err := json.Marshal([]map[string]any{{"rank": 1}})
	require.NoError(t, err)
	require.NoError(t, objects.PutLatest(ctx, "ds-read-fallback", objectstore.Snapshot{
		DatasetID: "ds-read-fallback", Version: 1, Data: snapData,
		ValidationSummary: "valid", SnapshotAt: time.Now().UTC().Format(time.RFC3339),
	}))

	svc := read.NewService(readyz, commits, kvClient, objects, nil, schemas, ruleSet, logger)

	result, err := svc.Read(ctx, "ds-read-fallback")
	require.NoError(t, err)

	assert.Equal(t, read.SourceObjectStore, result.Source)
	assert.Equal(t, 200, result.HTTPStatus, "fresh valid snapshot serves as live")
	assert.Equal(t, snapData, result.Body)
}
