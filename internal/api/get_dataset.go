package api

import (
	"net/http"
	"strconv"

	"github.com/dcsp-io/dcsp/internal/api/middleware"
)

// handleGetDataset handles GET /api/v1/datasets/{datasetId}, the
// Validated Read serving path (spec.md §4.10). On a KV hit the response
// body is the dataset's versioned envelope blob exactly as stored; an
// object-store fallback serves the snapshot's record data, and a result
// with no body gets a small {"status": reason} object. HTTP status and
// Cache-Control are derived by the read path's HTTP/Cache Mapper.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	datasetID := r.PathValue("datasetId")
	if datasetID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("datasetId path segment is required"))

		return
	}

	result, err := s.reader.Read(ctx, datasetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "validated read failed",
			"correlation_id", correlationID,
			"dataset_id", datasetID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to read dataset"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", result.CacheControl)
	w.Header().Set("X-Dataset-Source", string(result.Source))

	if result.Reason != "" {
		w.Header().Set("X-Validation-Status", result.Reason)
	}

	if result.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	}

	w.WriteHeader(result.HTTPStatus)

	if len(result.Body) > 0 {
		_, _ = w.Write(result.Body)

		return
	}

	_, _ = w.Write([]byte(`{"status":"` + result.Reason + `"}`))
}
