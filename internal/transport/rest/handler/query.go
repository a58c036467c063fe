package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/model"
	"github.com/sso312/QueryLens-sub002/internal/service"
)

const maxBodyBytes = 64 << 10

// QueryHandler serves the pipeline endpoints.
type QueryHandler struct {
	svc    *service.QueryService
	logger *zap.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(svc *service.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, logger: logger.Named("http")}
}

// Query handles POST /v1/query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.GenerateAndExecute(r.Context(), req)
	if err != nil {
		writePipelineError(w, h.logger, err, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type policyCheckRequest struct {
	SQL string `json:"sql"`
}

type policyCheckResponse struct {
	Compiled model.CompiledSQL   `json:"compiled"`
	Verdict  model.PolicyVerdict `json:"verdict"`
}

// PolicyCheck handles POST /v1/policy/check
func (h *QueryHandler) PolicyCheck(w http.ResponseWriter, r *http.Request) {
	var req policyCheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}

	compiled, verdict := h.svc.CheckSQL(req.SQL)
	writeJSON(w, http.StatusOK, policyCheckResponse{Compiled: compiled, Verdict: verdict})
}

type classifyRequest struct {
	Question string `json:"question"`
}

// Classify handles POST /v1/classify
func (h *QueryHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Classify(req.Question))
}
