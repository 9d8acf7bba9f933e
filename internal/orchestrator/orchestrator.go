// Package orchestrator drives one dataset through the lifecycle
// fetch -> validate -> stage -> promote -> snapshot -> cleanup (spec.md
// §4.5). Apart from commitlog.Reaper, which rolls back stale pending
// rows, it is the ONLY component that writes to the commit log, and the
// only one that flips the KV current pointer. Generalized from
// internal/storage/lineage_store.go's StoreEvent/StoreEvents
// fetch-validate-store shape: a single OpenLineage event there becomes
// a full dataset ingestion attempt here, and the per-event transaction
// becomes the stage-then-decide split required by the Commit Log's
// pending/committed/rolled_back state machine.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcsp-io/dcsp/internal/commitlog"
	"github.com/dcsp-io/dcsp/internal/envelope"
	"github.com/dcsp-io/dcsp/internal/httpcache"
	"github.com/dcsp-io/dcsp/internal/identity"
	"github.com/dcsp-io/dcsp/internal/kv"
	"github.com/dcsp-io/dcsp/internal/notify"
	"github.com/dcsp-io/dcsp/internal/objectstore"
	"github.com/dcsp-io/dcsp/internal/readiness"
	"github.com/dcsp-io/dcsp/internal/rules"
	"github.com/dcsp-io/dcsp/internal/schema"
)

// Tunables for the KV staging TTLs (spec.md §6: "pending >= 5min,
// committed >= 1hr") and the live-version floor (spec.md §4.5's cleanup
// policy: "keep at least the current and the immediately previous
// version live").
const (
	pendingTTL          = 5 * time.Minute
	committedTTL        = time.Hour
	minLiveVersionsKept = 2
)

// ErrStagingWriteFailed is returned when the KV write of the versioned
// blob fails during staging (spec.md §7's StagingWriteFailed).
var ErrStagingWriteFailed = errors.New("orchestrator: staging write failed")

// Fetcher retrieves the current record set for a dataset from whatever
// upstream source the caller wires in. explicitlyUnavailable signals
// that the source itself reported the dataset as unavailable (distinct
// from an empty result), feeding the Validator's explicit-unavailable
// override gate.
type Fetcher func(ctx context.Context, datasetID string) (records []map[string]any, explicitlyUnavailable bool, err error)

// Result is the commit result spec.md §4.5 step 9 requires: {success,
// committed, version, recordCount, httpStatus, lifecycle, isServingLKG,
// reason}.
type Result struct {
	Success      bool
	Committed    bool
	Version      int
	RecordCount  int
	HTTPStatus   int
	Lifecycle    httpcache.Lifecycle
	IsServingLKG bool
	Reason       string
}

// Orchestrator wires together every component the ingestion algorithm
// touches. A single instance is safe for concurrent use across distinct
// datasetIds; concurrent attempts for the SAME datasetId serialize on
// commitlog.Store's FOR UPDATE row lock inside PromoteCommit.
type Orchestrator struct {
	rules     *rules.Set
	validator *rules.Validator
	schemas   *schema.Store
	commits   *commitlog.Store
	readyz    *readiness.Service
	kvClient  kv.Client
	objects   objectstore.Store
	notifier  *notify.Producer
	identity  *identity.Registry
	logger    *slog.Logger
}

// New wires an Orchestrator from its component dependencies. notifier
// may be nil, in which case the snapshot-written notification is
// skipped entirely (useful for tests that don't stand up a broker).
// identityRegistry may also be nil, in which case staged envelopes are
// written without a canonical_identity stamp and Validated Read's
// identity assertion (spec.md §4.10 step 4) is skipped for this dataset.
func New(
	ruleSet *rules.Set,
	schemas *schema.Store,
	commits *commitlog.Store,
	readyz *readiness.Service,
	kvClient kv.Client,
	objects objectstore.Store,
	notifier *notify.Producer,
	identityRegistry *identity.Registry,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		rules:     ruleSet,
		validator: rules.NewValidator(),
		schemas:   schemas,
		commits:   commits,
		readyz:    readyz,
		kvClient:  kvClient,
		objects:   objects,
		notifier:  notifier,
		identity:  identityRegistry,
		logger:    logger,
	}
}

// Ingest runs one full attempt for datasetID, implementing spec.md
// §4.5's nine steps in order. A non-nil error return means the attempt
// could not even be recorded (metadata store unreachable, etc.); a
// business-level failure (fetch error, validation failure, schema
// incompatibility) is reflected in the returned Result instead, never
// as an error.
func (o *Orchestrator) Ingest(ctx context.Context, datasetID string, fetch Fetcher) (Result, error) {
	// Step 1: resolve rule.
	rule, ok := o.rules.Lookup(datasetID)
	if !ok {
		return Result{HTTPStatus: 503, Reason: "no rule registered for dataset"}, nil
	}

	// Step 2: allocate version, read current pointer's LKG candidate.
	version, err := o.commits.GetNextVersion(ctx, datasetID)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: allocate version for %s: %w", datasetID, err)
	}

	lkg, lkgErr := o.commits.LatestCommitted(ctx, datasetID)
	hasLKG := lkgErr == nil

	if lkgErr != nil && !errors.Is(lkgErr, commitlog.ErrNoCommitRow) {
		return Result{}, fmt.Errorf("orchestrator: resolve lkg candidate for %s: %w", datasetID, lkgErr)
	}

	// Step 3: fetch.
	records, explicitlyUnavailable, fetchErr := fetch(ctx, datasetID)
	if fetchErr != nil {
		o.logger.Warn("orchestrator: fetch failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", fetchErr))

		return o.handleFetchFailure(ctx, datasetID, version, hasLKG, lkg, fmt.Sprintf("fetch failed: %v", fetchErr))
	}

	now := time.Now().UTC()

	// Step 4: semantic validate.
	classification := o.validator.Classify(rule, records, now, explicitlyUnavailable)

	inSeason := rule.SeasonWindow == nil || rule.SeasonWindow.InWindow(int(now.Month()))
	offSeason := classification.Status == rules.StatusUnavailable && !explicitlyUnavailable && !inSeason

	// Step 5: schema validate, if a schema is registered.
	activeSchema, schemaErr := o.schemas.ResolveActive(ctx, datasetID)
	hasSchema := schemaErr == nil

	if schemaErr != nil && !errors.Is(schemaErr, schema.ErrNoActiveSchema) {
		return Result{}, fmt.Errorf("orchestrator: resolve active schema for %s: %w", datasetID, schemaErr)
	}

	schemaPassed := true

	var schemaValidationErr error

	if hasSchema && classification.Status == rules.StatusValid {
		schemaValidationErr = activeSchema.ValidateBatch(now, records)
		schemaPassed = schemaValidationErr == nil
	}

	schemaVersion, schemaHash := "", ""

	var schemaCompatible *bool

	if hasSchema {
		schemaVersion = activeSchema.SchemaVersion
		schemaHash = activeSchema.SchemaHash
		compatible := schemaPassed
		schemaCompatible = &compatible
	}

	validationStatus := string(classification.Status)

	reason := classification.Reason
	if !schemaPassed {
		validationStatus = "invalid"
		reason = fmt.Sprintf("schema validation failed: %v", schemaValidationErr)
	}

	passed := classification.Status == rules.StatusValid && schemaPassed

	// Step 6: compute lifecycle and write-time HTTP status.
	lifecycle := httpcache.DeriveLifecycle(validationStatus, len(records), rule.MinRecordCount, hasLKG, false, false)
	mapping := httpcache.MapWrite(lifecycle, validationStatus, schemaVersion, schemaCompatible)

	env := envelope.Wrap(records, envelope.Meta{
		HTTPStatusAtWrite: envelope.HTTPStatusAtWrite(mapping.HTTPStatus),
		LifecycleState:    string(lifecycle),
		RecordCount:       len(records),
		ValidationStatus:  validationStatus,
		DatasetID:         datasetID,
		ExpectedMinCount:  rule.MinRecordCount,
		WrittenAt:         now,
		Version:           version,
		IsLKG:             false,
		SchemaVersion:     schemaVersion,
		SchemaHash:        schemaHash,
		CanonicalIdentity: o.resolveCanonicalIdentity(ctx, datasetID),
	})

	body, err := env.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: marshal envelope for %s v%d: %w", datasetID, version, err)
	}

	prevCount := 0
	if hasLKG {
		prevCount = lkg.RecordCount
	}

	// Step 7: stage.
	if err := o.kvClient.PutVersioned(ctx, datasetID, version, body, pendingTTL); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStagingWriteFailed, err)
	}

	if err := o.commits.CreatePendingCommit(ctx, commitlog.Commit{
		DatasetID:           datasetID,
		Version:             version,
		RecordCount:         len(records),
		PreviousRecordCount: prevCount,
		ValidationStatus:    validationStatus,
		ValidationErrors:    classification.SchemaErrors,
		IngestedAt:          now,
		KVVersionedKey:      fmt.Sprintf("%s:v%d", datasetID, version),
		Source:              "orchestrator",
		SchemaVersion:       schemaVersion,
		SchemaHash:          schemaHash,
	}); err != nil {
		return Result{}, fmt.Errorf("orchestrator: stage pending commit for %s v%d: %w", datasetID, version, err)
	}

	// Step 8: decide.
	if !passed {
		return o.rollbackAndFallback(ctx, datasetID, version, hasLKG, lkg, reason, offSeason, mapping, lifecycle, !schemaPassed)
	}

	return o.promote(ctx, datasetID, version, len(records), lifecycle, mapping, records, commitlog.SchemaInfo{
		SchemaVersion: schemaVersion,
		SchemaHash:    schemaHash,
	})
}

// resolveCanonicalIdentity looks up the registered identity tuple for
// datasetID and returns its canonical JSON form for stamping onto the
// envelope (spec.md §4.3/§4.10: the read path asserts this against the
// identity it expects). A missing registration or a nil registry yields
// an empty value; this is non-fatal since identity assertion is itself
// best-effort on the read side.
func (o *Orchestrator) resolveCanonicalIdentity(ctx context.Context, datasetID string) json.RawMessage {
	if o.identity == nil {
		return nil
	}

	reg, err := o.identity.ResolveIdentity(ctx, datasetID)
	if err != nil {
		return nil
	}

	return json.RawMessage(reg.CanonicalIdentity)
}

// promote implements the "valid" branch of step 8: promote the commit,
// re-stamp the versioned blob with committed_at under the extended TTL,
// swap the current pointer, clear any LKG flag, mark readiness ready,
// write the object-store snapshot, fire the notification, and run
// best-effort cleanup of stale versions.
func (o *Orchestrator) promote(
	ctx context.Context,
	datasetID string,
	version, recordCount int,
	lifecycle httpcache.Lifecycle,
	mapping httpcache.Mapping,
	records []map[string]any,
	schemaInfo commitlog.SchemaInfo,
) (Result, error) {
	if err := o.commits.PromoteCommit(ctx, datasetID, version, schemaInfo); err != nil {
		return Result{}, fmt.Errorf("orchestrator: promote commit for %s v%d: %w", datasetID, version, err)
	}

	committedAt := time.Now().UTC()
	o.restampCommitted(ctx, datasetID, version, committedAt)

	if err := o.kvClient.PutCurrent(ctx, datasetID, version); err != nil {
		return Result{}, fmt.Errorf("orchestrator: swap current pointer for %s to v%d: %w", datasetID, version, err)
	}

	if err := o.commits.ClearLKGStatus(ctx, datasetID); err != nil {
		o.logger.Warn("orchestrator: clear lkg status failed", slog.String("dataset_id", datasetID), slog.Any("error", err))
	}

	if err := o.readyz.MarkLiveIngestion(ctx, datasetID); err != nil {
		o.logger.Warn("orchestrator: mark live ingestion failed", slog.String("dataset_id", datasetID), slog.Any("error", err))
	}

	o.writeSnapshot(ctx, datasetID, version, recordCount, committedAt, records)
	o.cleanupOldVersions(ctx, datasetID, version)

	return Result{
		Success:      true,
		Committed:    true,
		Version:      version,
		RecordCount:  recordCount,
		HTTPStatus:   mapping.HTTPStatus,
		Lifecycle:    lifecycle,
		IsServingLKG: false,
		Reason:       "committed",
	}, nil
}

// restampCommitted re-writes the already-staged versioned blob with
// committed_at populated and the longer committed-row TTL, per spec.md
// §4.5 step 8's "re-write the versioned blob with committed_at stamped
// and the extended committed TTL." A failure here is logged, not fatal:
// the blob without committed_at is still a valid envelope, just missing
// one optional metadata field.
func (o *Orchestrator) restampCommitted(ctx context.Context, datasetID string, version int, committedAt time.Time) {
	raw, err := o.kvClient.GetVersioned(ctx, datasetID, version)
	if err != nil {
		o.logger.Warn("orchestrator: re-read staged blob for re-stamp failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))

		return
	}

	env, err := envelope.Parse[[]map[string]any](raw)
	if err != nil {
		o.logger.Warn("orchestrator: parse staged blob for re-stamp failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))

		return
	}

	env.Meta.CommittedAt = &committedAt

	body, err := env.Marshal()
	if err != nil {
		o.logger.Warn("orchestrator: re-marshal committed blob failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))

		return
	}

	if err := o.kvClient.PutVersioned(ctx, datasetID, version, body, committedTTL); err != nil {
		o.logger.Warn("orchestrator: re-stamp committed blob failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))
	}
}

// writeSnapshot persists the object-store snapshot and fires the
// fire-and-forget notification. A snapshot write failure is non-fatal
// to promotion (spec.md §7: "SnapshotFailed ... non-fatal to
// promotion"), so errors are logged only.
func (o *Orchestrator) writeSnapshot(
	ctx context.Context,
	datasetID string,
	version, recordCount int,
	snapshotAt time.Time,
	records []map[string]any,
) {
	data, err := json.Marshal(records)
	if err != nil {
		o.logger.Warn("orchestrator: marshal snapshot data failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))

		return
	}

	snap := objectstore.Snapshot{
		DatasetID:         datasetID,
		Version:           version,
		Data:              data,
		ValidationSummary: "valid",
		SnapshotAt:        snapshotAt.Format(time.RFC3339),
	}

	if err := o.objects.PutVersion(ctx, datasetID, version, snap); err != nil {
		o.logger.Warn("orchestrator: snapshot write failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))

		return
	}

	if err := o.objects.PutLatest(ctx, datasetID, snap); err != nil {
		o.logger.Warn("orchestrator: snapshot latest-pointer write failed",
			slog.String("dataset_id", datasetID), slog.Int("version", version), slog.Any("error", err))
	}

	if o.notifier != nil {
		o.notifier.PublishSnapshotWritten(ctx, notify.SnapshotWrittenEvent{
			DatasetID:   datasetID,
			Version:     version,
			RecordCount: recordCount,
			SnapshotAt:  snapshotAt,
		})
	}
}

// cleanupOldVersions best-effort deletes the versioned KV blob two
// versions behind the one just promoted, keeping the current and
// immediately previous version live per spec.md §4.5's cleanup policy.
// Deletion failures are logged, never returned: this is strictly
// housekeeping.
func (o *Orchestrator) cleanupOldVersions(ctx context.Context, datasetID string, promotedVersion int) {
	staleVersion := promotedVersion - minLiveVersionsKept
	if staleVersion < 1 {
		return
	}

	if err := o.kvClient.DeleteVersioned(ctx, datasetID, staleVersion); err != nil {
		o.logger.Warn("orchestrator: cleanup of stale version failed",
			slog.String("dataset_id", datasetID), slog.Int("version", staleVersion), slog.Any("error", err))
	}
}

// rollbackAndFallback implements the "not valid" branch of step 8: roll
// back the staged pending row and, unless this was an off-season
// unavailable result (which displaces nothing per spec.md §4.5's tie-
// breaks), fall back to serving LKG or transition readiness down.
func (o *Orchestrator) rollbackAndFallback(
	ctx context.Context,
	datasetID string,
	version int,
	hasLKG bool,
	lkg commitlog.Commit,
	reason string,
	offSeason bool,
	mapping httpcache.Mapping,
	lifecycle httpcache.Lifecycle,
	schemaFailed bool,
) (Result, error) {
	if err := o.commits.RollbackCommit(ctx, datasetID, version, reason); err != nil {
		return Result{}, fmt.Errorf("orchestrator: rollback commit for %s v%d: %w", datasetID, version, err)
	}

	result := Result{Version: version, Reason: reason}

	if offSeason {
		// No LKG displacement, no readiness transition downward.
		result.HTTPStatus = mapping.HTTPStatus
		result.Lifecycle = lifecycle

		return result, nil
	}

	if hasLKG {
		if err := o.commits.MarkServingLKG(ctx, datasetID, lkg.Version, reason); err != nil {
			o.logger.Warn("orchestrator: mark serving lkg failed", slog.String("dataset_id", datasetID), slog.Any("error", err))
		}

		if err := o.readyz.Transition(ctx, datasetID, readiness.StateDegraded, reason); err != nil {
			o.logger.Warn("orchestrator: readiness transition to degraded failed",
				slog.String("dataset_id", datasetID), slog.Any("error", err))
		}

		result.IsServingLKG = true
		result.RecordCount = lkg.RecordCount
		result.Lifecycle = httpcache.LifecycleStale
		result.HTTPStatus = 503

		if schemaFailed {
			result.HTTPStatus = 422
		}

		return result, nil
	}

	if err := o.readyz.Transition(ctx, datasetID, readiness.StateUnavailable, reason); err != nil {
		o.logger.Warn("orchestrator: readiness transition to unavailable failed",
			slog.String("dataset_id", datasetID), slog.Any("error", err))
	}

	result.Lifecycle = httpcache.LifecycleUnavailable
	result.HTTPStatus = 503

	if schemaFailed {
		result.HTTPStatus = 422
	}

	return result, nil
}

// handleFetchFailure implements step 3's error branch: a failed fetch
// records a failed attempt but never writes to KV or alters the current
// pointer. The attempt is recorded by opening and immediately rolling
// back a commit row, reusing the same store methods the main path uses
// rather than adding a third write shape to commitlog.Store.
func (o *Orchestrator) handleFetchFailure(
	ctx context.Context,
	datasetID string,
	version int,
	hasLKG bool,
	lkg commitlog.Commit,
	reason string,
) (Result, error) {
	attempt := commitlog.Commit{
		DatasetID:        datasetID,
		Version:          version,
		RecordCount:      0,
		ValidationStatus: "fetch_failed",
		IngestedAt:       time.Now().UTC(),
		Source:           "orchestrator",
	}

	if err := o.commits.CreatePendingCommit(ctx, attempt); err != nil {
		o.logger.Warn("orchestrator: record failed fetch attempt failed",
			slog.String("dataset_id", datasetID), slog.Any("error", err))
	} else if err := o.commits.RollbackCommit(ctx, datasetID, version, reason); err != nil {
		o.logger.Warn("orchestrator: rollback failed-fetch commit row failed",
			slog.String("dataset_id", datasetID), slog.Any("error", err))
	}

	result := Result{Version: version, Reason: reason, HTTPStatus: 503}

	if hasLKG {
		if err := o.commits.MarkServingLKG(ctx, datasetID, lkg.Version, reason); err != nil {
			o.logger.Warn("orchestrator: mark serving lkg failed", slog.String("dataset_id", datasetID), slog.Any("error", err))
		}

		if err := o.readyz.Transition(ctx, datasetID, readiness.StateDegraded, reason); err != nil {
			o.logger.Warn("orchestrator: readiness transition to degraded failed",
				slog.String("dataset_id", datasetID), slog.Any("error", err))
		}

		result.IsServingLKG = true
		result.RecordCount = lkg.RecordCount
		result.Lifecycle = httpcache.LifecycleStale

		return result, nil
	}

	if err := o.readyz.Transition(ctx, datasetID, readiness.StateUnavailable, reason); err != nil {
		o.logger.Warn("orchestrator: readiness transition to unavailable failed",
			slog.String("dataset_id", datasetID), slog.Any("error", err))
	}

	result.Lifecycle = httpcache.LifecycleUnavailable

	return result, nil
}
