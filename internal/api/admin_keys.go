package api

import (
	"encoding/json"
	"net/http"

	"github.com/dcsp-io/dcsp/internal/api/middleware"
)

// IssueAdminKeyRequest requests a new admin API key.
type IssueAdminKeyRequest struct {
	Label string `json:"label"`
}

// IssueAdminKeyResponse returns the plaintext key exactly once -- it is
// never retrievable again after this response.
type IssueAdminKeyResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// handleIssueAdminKey handles POST /api/v1/admin/keys.
func (s *Server) handleIssueAdminKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if s.apiKeyStore == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("admin key store is not configured on this server"))

		return
	}

	var req IssueAdminKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("invalid request body: "+err.Error()))

		return
	}

	if req.Label == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("label is required"))

		return
	}

	plaintext, key, err := s.apiKeyStore.Issue(ctx, req.Label)
	if err != nil {
		s.logger.ErrorContext(ctx, "admin key issuance failed",
			"correlation_id", correlationID,
			"label", req.Label,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to issue admin key"))

		return
	}

	data, err := json.Marshal(IssueAdminKeyResponse{ID: key.ID, Key: plaintext})
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(data)
}

// handleRevokeAdminKey handles DELETE /api/v1/admin/keys/{keyId}.
func (s *Server) handleRevokeAdminKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if s.apiKeyStore == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("admin key store is not configured on this server"))

		return
	}

	keyID := r.PathValue("keyId")
	if keyID == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("keyId path segment is required"))

		return
	}

	if err := s.apiKeyStore.Revoke(ctx, keyID); err != nil {
		s.logger.ErrorContext(ctx, "admin key revocation failed",
			"correlation_id", correlationID,
			"key_id", keyID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, NotFound("admin key not found"))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
