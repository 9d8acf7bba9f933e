package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dcsp-io/dcsp/internal/api/middleware"
)

// TriggerIngestionRequest is the admin-supplied record batch for a single
// ingestion attempt (spec.md §4.5). The scheduler drives the same
// Orchestrator.Ingest call on a timer using its own Fetcher; this
// endpoint lets an operator or upstream system push a batch on demand.
type TriggerIngestionRequest struct {
	Records               []map[string]any `json:"records"`
	ExplicitlyUnavailable bool             `json:"explicitlyUnavailable,omitempty"`
}

// TriggerIngestionResponse mirrors orchestrator.Result's commit outcome.
type TriggerIngestionResponse struct {
	Success      bool   `json:"success"`
	Committed    bool   `json:"committed"`
	Version      int    `json:"version"`
	RecordCount  int    `json:"recordCount"`
	Lifecycle    string `json:"lifecycle"`
	IsServingLKG bool   `json:"isServingLkg"`
	Reason       string `json:"reason,omitempty"`
}

// handleTriggerIngestion handles POST /api/v1/admin/datasets/{datasetId}/ingest.
func (s *Server) handleTriggerIngestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if s.orch == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("ingestion trigger is not configured on this server"))

		return
	}

	datasetID := r.PathValue("datasetId")
	if datasetID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("datasetId path segment is required"))

		return
	}

	var req TriggerIngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body: "+err.Error()))

		return
	}

	fetch := func(_ context.Context, _ string) ([]map[string]any, bool, error) {
		return req.Records, req.ExplicitlyUnavailable, nil
	}

	result, err := s.orch.Ingest(ctx, datasetID, fetch)
	if err != nil {
		s.logger.ErrorContext(ctx, "ingestion trigger failed",
			"correlation_id", correlationID,
			"dataset_id", datasetID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("ingestion attempt could not be recorded"))

		return
	}

	resp := TriggerIngestionResponse{
		Success:      result.Success,
		Committed:    result.Committed,
		Version:      result.Version,
		RecordCount:  result.RecordCount,
		Lifecycle:    string(result.Lifecycle),
		IsServingLKG: result.IsServingLKG,
		Reason:       result.Reason,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.HTTPStatus)
	_, _ = w.Write(data)
}
