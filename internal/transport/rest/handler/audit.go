package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sso312/QueryLens-sub002/internal/repository"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler exposes the audit log and the cost ledger.
type AuditHandler struct {
	audit  repository.AuditLog
	ledger repository.CostLedger
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit repository.AuditLog, ledger repository.CostLedger, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, ledger: ledger, logger: logger.Named("http")}
}

// Recent handles GET /v1/audit?limit=n
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read audit log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// CostSummary handles GET /v1/costs/summary
func (h *AuditHandler) CostSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Summary(r.Context())
	if err != nil {
		h.logger.Error("Failed to summarize costs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to summarize costs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"models": summary})
}
