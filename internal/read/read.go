// Package read implements Validated Read (spec.md §4.10): the end-to-end
// GET path that consults readiness, the KV surface, and the object-store
// snapshot fallback, then maps the result to an HTTP response using the
// same pure Lifecycle/HTTP-cache functions the Orchestrator uses at write
// time. Grounded on the teacher's handler-decomposition idiom in
// routes.go (parse -> gate -> fetch -> assert -> map -> send, each a
// small private method), generalized here into a sequence of private
// methods on *Service rather than *Server since the read path has no
// HTTP framing of its own -- internal/api wraps it.
package read

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
	"github.com/dcsp-io/dcsp/internal/objectstore"
	"github.com/dcsp-io/dcsp/internal/readiness"
	"github.com/dcsp-io/dcsp/internal/rules"
	"github.com/dcsp-io/dcsp/internal/schema"
)

// objectStoreStaleAfter bounds how old an object-store snapshot may be
// before Validated Read reports it as stale rather than live, mirroring
// readiness.defaultSnapshotMaxAge's cold-start recovery window.
const objectStoreStaleAfter = 24 * time.Hour

// ErrIdentityViolation is surfaced when a stored envelope's identity
// disagrees with the dataset's registered identity (spec.md §4.10 step 4).
var ErrIdentityViolation = errors.New("read: identity violation")

// Source records where a served payload came from, for response headers
// and observability.
type Source string

const (
	SourceKV          Source = "kv"
	SourceObjectStore Source = "object-store"
	SourceNone        Source = "none"
)

// Result is the outcome of a Validated Read attempt.
type Result struct {
	Body          []byte
	HTTPStatus    int
	CacheControl  string
	RetryAfter    int
	Source        Source
	Renderability httpcache.Renderability
	Reason        string
}

// Service drives the Validated Read path for one dataset store
// configuration. A single instance is safe for concurrent use.
type Service struct {
	readyz   *readiness.Service
	commits  *commitlog.Store
	kvClient kv.Client
	objects  objectstore.Store
	identity *identity.Registry
	schemas  *schema.Store
	rules    *rules.Set
	logger   *slog.Logger
}

// NewService wires a Validated Read Service. identityRegistry and
// schemas may be nil, in which case identity assertion and schema
// compatibility annotation are skipped respectively.
func NewService(
	readyz *readiness.Service,
	commits *commitlog.Store,
	kvClient kv.Client,
	objects objectstore.Store,
	identityRegistry *identity.Registry,
	schemas *schema.Store,
	ruleSet *rules.Set,
	logger *slog.Logger,
) *Service {
	return &Service{
		readyz:   readyz,
		commits:  commits,
		kvClient: kvClient,
		objects:  objects,
		identity: identityRegistry,
		schemas:  schemas,
		rules:    ruleSet,
		logger:   logger,
	}
}

// Read runs the full seven-step Validated Read algorithm for datasetID.
func (s *Service) Read(ctx context.Context, datasetID string) (Result, error) {
	// Step 1: consult readiness.
	check := s.readyz.Check(ctx, datasetID)
	if !check.AllowKVRead {
		return Result{
			HTTPStatus:   check.HTTPStatus,
			CacheControl: "no-store",
			RetryAfter:   30,
			Source:       SourceNone,
			Reason:       check.Reason,
		}, nil
	}

	// Step 2 & 3: resolve the current version, read the versioned blob.
	version, lkgCandidate, resolveErr := s.resolveVersion(ctx, datasetID)
	if resolveErr != nil {
		return s.objectStoreFallback(ctx, datasetID, 0, check)
	}

	raw, err := s.kvClient.GetVersioned(ctx, datasetID, version)
	if err != nil {
		return s.objectStoreFallback(ctx, datasetID, version, check)
	}

	env, parseErr := envelope.Parse[[]map[string]any](raw)
	if parseErr != nil {
		// Legacy/unparsable payload: treat as stale per spec.md §4.7.
		return s.legacyResult(raw, check), nil
	}

	// Step 4: assert identity.
	if violation := s.assertIdentity(ctx, datasetID, env.Meta.CanonicalIdentity); violation != nil {
		return Result{
			HTTPStatus:   503,
			CacheControl: "no-store",
			Source:       SourceKV,
			Reason:       violation.Error(),
		}, nil
	}

	// Step 5: map using the envelope's persisted fields plus the current rule.
	mapping := s.mapEnvelope(ctx, datasetID, env.Meta)

	result := Result{
		Body:          raw,
		HTTPStatus:    mapping.HTTPStatus,
		CacheControl:  mapping.CacheControl,
		RetryAfter:    mapping.RetryAfter,
		Source:        SourceKV,
		Renderability: mapping.Renderability,
		Reason:        s.describeValidationStatus(datasetID, env.Meta),
	}

	// Step 7: a degraded metadata store forces no-store regardless of
	// what the KV blob itself says.
	if check.State == readiness.StateDegraded {
		result.CacheControl = "no-store"
		result.HTTPStatus = 503
	}

	_ = lkgCandidate // retained for callers that want to report LKG provenance

	return result, nil
}

// resolveVersion implements step 2: the pointer, falling back to the
// commit log's current-version row if the KV pointer itself is unset.
func (s *Service) resolveVersion(ctx context.Context, datasetID string) (version int, isLKG bool, err error) {
	v, err := s.kvClient.GetCurrent(ctx, datasetID)
	if err == nil {
		return v, false, nil
	}

	cv, cvErr := s.commits.CurrentVersionFor(ctx, datasetID)
	if cvErr != nil {
		return 0, false, fmt.Errorf("read: resolve version for %s: %w", datasetID, cvErr)
	}

	return cv.CurrentVersion, cv.IsServingLKG, nil
}

// assertIdentity implements step 4. A nil registry or an envelope with
// no stamped canonical identity skips the check rather than failing the
// read, since identity stamping is itself best-effort at write time.
func (s *Service) assertIdentity(ctx context.Context, datasetID string, stored json.RawMessage) error {
	if s.identity == nil || len(stored) == 0 {
		return nil
	}

	reg, err := s.identity.ResolveIdentity(ctx, datasetID)
	if err != nil {
		return nil
	}

	var storedTuple identity.Tuple
	if err := json.Unmarshal(stored, &storedTuple); err != nil {
		return nil
	}

	if identErr := identity.AssertIdentity(reg.Tuple, storedTuple); identErr != nil {
		return fmt.Errorf("%w: %v", ErrIdentityViolation, identErr)
	}

	return nil
}

// mapEnvelope implements step 5, folding in schema compatibility against
// the dataset's currently active schema when one is registered.
func (s *Service) mapEnvelope(ctx context.Context, datasetID string, meta envelope.Meta) httpcache.Mapping {
	lifecycle := httpcache.Lifecycle(meta.LifecycleState)

	var schemaCompatible *bool

	if s.schemas != nil && meta.SchemaVersion != "" {
		active, err := s.schemas.ResolveActive(ctx, datasetID)
		if err == nil {
			compatible, cerr := schema.IsCompatible(meta.SchemaVersion, active.SchemaVersion)
			if cerr == nil {
				schemaCompatible = &compatible
			}
		}
	}

	return httpcache.MapRead(lifecycle, meta.ValidationStatus, meta.SchemaVersion, schemaCompatible)
}

// describeValidationStatus annotates the bare validation_status with the
// currently registered rule's expected minimum, when one exists, so a
// consumer can tell "invalid, got 3 of 25 required" from a bare "invalid".
func (s *Service) describeValidationStatus(datasetID string, meta envelope.Meta) string {
	if s.rules == nil || meta.ValidationStatus == "valid" {
		return meta.ValidationStatus
	}

	rule, ok := s.rules.Lookup(datasetID)
	if !ok {
		return meta.ValidationStatus
	}

	return fmt.Sprintf("%s (record_count=%d, required_min=%d)", meta.ValidationStatus, meta.RecordCount, rule.MinRecordCount)
}

// legacyResult builds the response for an unparsable ("legacy") payload:
// served as stale, never cached, per spec.md §4.7.
func (s *Service) legacyResult(raw []byte, check readiness.Check) Result {
	return Result{
		Body:         raw,
		HTTPStatus:   503,
		CacheControl: "no-store",
		RetryAfter:   60,
		Source:       SourceKV,
		Reason:       "legacy payload: no safety envelope meta",
	}
}

// objectStoreFallback implements step 6: when no version resolves or the
// versioned KV blob is missing, attempt the snapshot store (an unparsable
// blob goes to legacyResult instead). version == 0 means no version was even
// resolved, in which case only the latest pointer is tried.
func (s *Service) objectStoreFallback(ctx context.Context, datasetID string, version int, check readiness.Check) (Result, error) {
	var (
		snap objectstore.Snapshot
		err  error
	)

	if version > 0 {
		snap, err = s.objects.GetVersion(ctx, datasetID, version)
	}

	if version == 0 || err != nil {
		snap, err = s.objects.GetLatest(ctx, datasetID)
	}

	if err != nil {
		s.logger.Warn("read: object-store fallback missed",
			slog.String("dataset_id", datasetID), slog.Any("error", err))

		return Result{
			HTTPStatus:   503,
			CacheControl: "no-store",
			RetryAfter:   60,
			Source:       SourceNone,
			Reason:       "kv and object-store both missed",
		}, nil
	}

	snapshotAt, parseErr := time.Parse(time.RFC3339, snap.SnapshotAt)

	lifecycle := httpcache.LifecycleStale
	httpStatus := 503
	cacheControl := "no-store"

	if parseErr == nil && time.Since(snapshotAt) <= objectStoreStaleAfter && snap.ValidationSummary == "valid" {
		lifecycle = httpcache.LifecycleLive
		httpStatus = 200
		cacheControl = "public, max-age=60, s-maxage=120"
	}

	if check.State == readiness.StateDegraded {
		cacheControl = "no-store"
		httpStatus = 503
	}

	return Result{
		Body:         snap.Data,
		HTTPStatus:   httpStatus,
		CacheControl: cacheControl,
		Source:       SourceObjectStore,
		Reason:       fmt.Sprintf("served from object-store snapshot (%s)", lifecycle),
	}, nil
}
