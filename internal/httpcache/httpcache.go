// Package httpcache implements Lifecycle Derivation (spec.md §4.8) and
// the HTTP/Cache Mapper (spec.md §4.9) as pure functions: no I/O, no
// persistence, safe to call from both the write path (Orchestrator) and
// the read path (Validated Read).
package httpcache

import "fmt"

// Lifecycle is the write-time label a payload is tagged with.
type Lifecycle string

const (
	LifecycleInitializing Lifecycle = "initializing"
	LifecycleLive         Lifecycle = "live"
	LifecycleStale        Lifecycle = "stale"
	LifecycleEmptyValid   Lifecycle = "empty_valid"
	LifecycleUnavailable  Lifecycle = "unavailable"
)

// Compatibility is the Renderability Contract's consumer_compatibility
// field.
type Compatibility string

const (
	CompatCompatible   Compatibility = "compatible"
	CompatIncompatible Compatibility = "incompatible"
	CompatUnknown      Compatibility = "unknown"
)

// Renderability is the machine-readable contract attached to every
// response envelope.
type Renderability struct {
	Renderable            bool
	SchemaVersion         string
	ConsumerCompatibility Compatibility
	Reason                string
}

// Mapping is the wire-ready triple (status, cache-control, renderability)
// produced by Map.
type Mapping struct {
	HTTPStatus    int
	CacheControl  string
	RetryAfter    int // seconds; 0 means no Retry-After header
	Eligible      bool
	Renderability Renderability
}

// DeriveLifecycle is spec.md §4.8: lifecycle_state at write time is a pure
// function of (validation result, record count, prior-existence).
func DeriveLifecycle(validationStatus string, recordCount int, expectedMin int, hasPriorCommit bool, isLKG bool, isLegacy bool) Lifecycle {
	switch {
	case isLegacy || isLKG:
		return LifecycleStale
	case !hasPriorCommit:
		return LifecycleInitializing
	case validationStatus == "unavailable" && recordCount == 0:
		return LifecycleEmptyValid
	case validationStatus == "valid" && recordCount >= expectedMin:
		return LifecycleLive
	default:
		return LifecycleUnavailable
	}
}

// MapWrite produces the wire-ready triple for the write-reporting
// endpoint (spec.md §4.9: "Schema incompatible or invariant violated on
// write ⇒ 422 on the write-reporting endpoint (never written to KV)").
// schemaCompatible indicates whether a schema was declared and, if so,
// whether the batch just validated against it; nil means no schema was
// declared at all. Only the Orchestrator's write-time call should use
// this: a batch that fails schema validation is never staged, so 422
// here reports the attempt, not a previously-committed dataset.
func MapWrite(lifecycle Lifecycle, validationStatus string, schemaVersion string, schemaCompatible *bool) Mapping {
	renderability := deriveRenderability(schemaVersion, schemaCompatible)

	if schemaCompatible != nil && !*schemaCompatible {
		return Mapping{
			HTTPStatus:    422,
			CacheControl:  "no-store",
			Eligible:      false,
			Renderability: renderability,
		}
	}

	return mapLifecycle(lifecycle, validationStatus, renderability)
}

// MapRead produces the wire-ready triple for Validated Read. Per spec.md
// §4.9, cache eligibility is unconditional on lifecycle_state==live AND
// validation_status==valid alone: a dataset committed while compatible
// with an older active schema version stays 200/cache-eligible even
// after the active schema moves on, surfacing the drift only through
// Renderability{renderable:false, consumerCompatibility:incompatible}
// per the Renderability Contract. MapRead therefore never returns 422 --
// that status is reserved for the write-reporting endpoint.
func MapRead(lifecycle Lifecycle, validationStatus string, schemaVersion string, schemaCompatible *bool) Mapping {
	renderability := deriveRenderability(schemaVersion, schemaCompatible)

	return mapLifecycle(lifecycle, validationStatus, renderability)
}

func mapLifecycle(lifecycle Lifecycle, validationStatus string, renderability Renderability) Mapping {
	switch {
	case lifecycle == LifecycleLive && validationStatus == "valid":
		return Mapping{
			HTTPStatus:    200,
			CacheControl:  "public, max-age=300, s-maxage=900",
			Eligible:      true,
			Renderability: renderability,
		}
	case lifecycle == LifecycleInitializing:
		return Mapping{
			HTTPStatus:    202,
			CacheControl:  "no-store",
			RetryAfter:    30,
			Eligible:      false,
			Renderability: renderability,
		}
	case lifecycle == LifecycleEmptyValid:
		return Mapping{
			HTTPStatus:    204,
			CacheControl:  "no-store",
			Eligible:      false,
			Renderability: renderability,
		}
	default:
		// stale (legacy or LKG), degraded, unavailable: invariants unmet.
		return Mapping{
			HTTPStatus:    503,
			CacheControl:  "no-store",
			RetryAfter:    60,
			Eligible:      false,
			Renderability: renderability,
		}
	}
}

func deriveRenderability(schemaVersion string, schemaCompatible *bool) Renderability {
	if schemaVersion == "" {
		return Renderability{Renderable: true, ConsumerCompatibility: CompatUnknown}
	}

	if schemaCompatible == nil {
		return Renderability{Renderable: true, SchemaVersion: schemaVersion, ConsumerCompatibility: CompatUnknown}
	}

	if *schemaCompatible {
		return Renderability{Renderable: true, SchemaVersion: schemaVersion, ConsumerCompatibility: CompatCompatible}
	}

	return Renderability{
		Renderable:            false,
		SchemaVersion:         schemaVersion,
		ConsumerCompatibility: CompatIncompatible,
		Reason:                fmt.Sprintf("schema version %s is incompatible with the active schema", schemaVersion),
	}
}
