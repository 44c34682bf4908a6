package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	domainerrors "github.com/snipekit/snipekit/internal/domain/errors"
)

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps an error onto the wire. AppErrors carry their own status
// and class; anything else is an opaque 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unclassified handler error", zap.Error(err))
		appErr = domainerrors.NewInternalError("internal server error")
	}

	if appErr.Type == domainerrors.ErrorTypeInternal && appErr.Cause != nil {
		logger.Error("internal error", zap.Error(appErr))
	}

	writeJSON(w, appErr.StatusCode, errorResponse{Error: errorBody{
		Type:    string(appErr.Type),
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}
