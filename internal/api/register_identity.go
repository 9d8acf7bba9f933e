package api

import (
	"encoding/json"
	"net/http"

	"github.com/dcsp-io/dcsp/internal/api/middleware"
	"github.com/dcsp-io/dcsp/internal/identity"
)

// RegisterIdentityRequest registers the canonical identity tuple for a
// dataset (spec.md §4.3). The server computes and returns the derived
// datasetId; callers use it for every subsequent schema, rule and
// ingestion-trigger call.
type RegisterIdentityRequest struct {
	Sport            string `json:"sport"`
	CompetitionLevel string `json:"competitionLevel"`
	Season           string `json:"season"`
	DatasetType      string `json:"datasetType"`
	Qualifier        string `json:"qualifier,omitempty"`
}

// RegisterIdentityResponse returns the derived datasetId for the
// registered tuple.
type RegisterIdentityResponse struct {
	DatasetID string `json:"datasetId"`
}

// handleRegisterIdentity handles POST /api/v1/admin/identities.
func (s *Server) handleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if s.idRegistry == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("identity registry is not configured on this server"))

		return
	}

	var req RegisterIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body: "+err.Error()))

		return
	}

	raw := identity.Tuple{
		Sport:            req.Sport,
		CompetitionLevel: req.CompetitionLevel,
		Season:           req.Season,
		DatasetType:      req.DatasetType,
		Qualifier:        req.Qualifier,
	}

	var allow identity.AllowLists
	if s.ruleSet != nil {
		allow = s.ruleSet.IdentityAllowLists()
	}

	normalized, err := identity.Normalize(raw, allow)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid identity tuple: "+err.Error()))

		return
	}

	datasetID, _, err := identity.ComputeDatasetID(normalized)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to derive dataset id"))

		return
	}

	if err := s.idRegistry.RegisterIdentity(ctx, datasetID, normalized); err != nil {
		s.logger.ErrorContext(ctx, "identity registration failed",
			"correlation_id", correlationID,
			"dataset_id", datasetID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, Conflict("failed to register identity: "+err.Error()))

		return
	}

	data, err := json.Marshal(RegisterIdentityResponse{DatasetID: datasetID})
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(data)
}
