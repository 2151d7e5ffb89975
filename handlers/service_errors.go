package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// ErrorHandler maps domain errors to HTTP responses. Wrapped causes are only
// exposed in development mode.
type ErrorHandler struct {
	recorder    audit.Recorder
	logger      *zap.Logger
	development bool
}

// NewErrorHandler creates an ErrorHandler
func NewErrorHandler(recorder audit.Recorder, logger *zap.Logger, development bool) *ErrorHandler {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &ErrorHandler{recorder: recorder, logger: logger, development: development}
}

// HandleServiceError writes the response for err
func (h *ErrorHandler) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := copyDetails(services.GetErrorDetails(err))
	if h.development {
		details["detail"] = err.Error()
	}

	var status int
	code := ""
	switch {
	case services.IsNotFoundError(err):
		status = http.StatusNotFound
	case services.IsValidationError(err):
		status = http.StatusBadRequest
	case services.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
	case services.IsForbiddenError(err):
		status = http.StatusForbidden
	case services.IsConflictError(err):
		status = http.StatusConflict
	case services.IsInvariantViolation(err):
		status, code = http.StatusConflict, string(services.ErrorTypeInvariantViolation)
	case services.IsRateLimitError(err):
		status = http.StatusTooManyRequests
	case services.IsExternalError(err), services.IsCredentialError(err):
		status = http.StatusBadGateway
	default:
		h.internal(w, r, err)
		return
	}

	if code == "" {
		code = utils.ErrorCode(status)
	}
	if len(details) == 0 {
		details = nil
	}
	if werr := utils.WriteErrorCode(w, status, code, message, details); werr != nil {
		h.logger.Error("failed to write error response", zap.Error(werr))
	}

	h.logger.Debug("handled service error",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("type", string(services.GetErrorType(err))),
		zap.Int("status", status))
}

// internal logs and audits the failure and returns a generic message
func (h *ErrorHandler) internal(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	h.logger.Error("internal server error",
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))

	principalID := ""
	if p := middleware.GetPrincipalFromContext(ctx); p != nil {
		principalID = p.ID
	} else if c := middleware.GetClaimsFromContext(ctx); c != nil {
		principalID = c.UserID
	}
	h.recorder.Record(ctx, models.AuditActionServerError, principalID, map[string]interface{}{
		"error":   err.Error(),
		"url":     r.URL.String(),
		"method":  r.Method,
		"traceId": requestID,
	})

	var details map[string]interface{}
	if h.development {
		details = map[string]interface{}{"detail": err.Error()}
	}
	if requestID != "" {
		if details == nil {
			details = map[string]interface{}{}
		}
		details["requestId"] = requestID
	}
	if werr := utils.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "An internal error occurred", details); werr != nil {
		h.logger.Error("failed to write internal error response", zap.Error(werr))
	}
}

// HandleValidationError handles request parsing and struct validation errors
func (h *ErrorHandler) HandleValidationError(w http.ResponseWriter, err error) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if werr := utils.WriteBadRequest(w, "Validation failed", details); werr != nil {
			h.logger.Error("failed to write validation error response", zap.Error(werr))
		}
		return
	}

	message := "Invalid request body"
	var details map[string]interface{}
	switch {
	case errors.Is(err, io.EOF):
		message = "Request body is required"
	case h.development:
		details = map[string]interface{}{"detail": err.Error()}
	}
	if werr := utils.WriteBadRequest(w, message, details); werr != nil {
		h.logger.Error("failed to write validation error response", zap.Error(werr))
	}
}

func copyDetails(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
