package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var (
		ve *common.ValidationError
		ue *common.UploadError
		pe *common.PersistenceError
		me *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &me):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrUnknownCollection):
		return http.StatusNotFound
	case errors.Is(err, common.ErrNotConfirmed):
		return http.StatusPreconditionFailed
	case errors.Is(err, common.ErrFormState):
		return http.StatusConflict
	case errors.Is(err, common.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.As(err, &ue), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides the details of unexpected failures from clients.
func errorMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return common.ErrInternal.Error()
	}
	return err.Error()
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "status", status, "error", err)
	} else {
		s.logger.Warn(ctx, "request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: errorMessage(status, err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
