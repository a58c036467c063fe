package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	qerrors "github.com/sso312/QueryLens-sub002/internal/errors"
	"github.com/sso312/QueryLens-sub002/internal/model"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string               `json:"error"`
	Reason    string               `json:"reason,omitempty"`
	Clause    string               `json:"clause,omitempty"`
	RequestID string               `json:"request_id,omitempty"`
	Response  *model.QueryResponse `json:"response,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writePipelineError maps a pipeline failure onto a status code. Only policy
// violations expose their reason; everything else is logged and replaced by
// a generic message.
func writePipelineError(w http.ResponseWriter, logger *zap.Logger, err error, resp *model.QueryResponse) {
	body := ErrorResponse{}
	if resp != nil {
		body.RequestID = resp.RequestID
	}

	e, _ := qerrors.As(err)
	status := http.StatusInternalServerError
	switch qerrors.KindOf(err) {
	case qerrors.InvalidInput:
		status = http.StatusBadRequest
		body.Error = e.Message
	case qerrors.PolicyViolation:
		status = http.StatusUnprocessableEntity
		body.Error = e.Message
		body.Reason = e.Code
		body.Clause = e.Clause
		body.Response = resp
	case qerrors.GenerationFailed:
		status = http.StatusBadGateway
		body.Error = "SQL generation failed"
	case qerrors.Timeout:
		status = http.StatusGatewayTimeout
		body.Error = "query timed out"
	case qerrors.Cancelled:
		status = http.StatusRequestTimeout
		body.Error = "request cancelled"
	default:
		body.Error = "query could not be executed"
	}

	logger.Warn("Request failed",
		zap.String("request_id", body.RequestID),
		zap.Int("status", status),
		zap.Error(err))
	writeJSON(w, status, body)
}
