package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	pkgerrors "github.com/tendant/device-trust/pkg/errors"
)

// renderErrorResponse writes err with the status of its code. Internal
// errors are logged and replaced by a generic message.
func renderErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := pkgerrors.GetCode(err)
	status := pkgerrors.MapErrorCodeToHTTPStatus(code)

	resp := ErrorResponse{
		Status:  "error",
		Message: pkgerrors.GetMessage(err),
		Code:    string(code),
		Details: pkgerrors.GetDetails(err),
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Message = "Internal server error"
		resp.Details = nil
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("Failed to decode request body", "error", err)
		return pkgerrors.InvalidInput("request body", err.Error())
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, pkgerrors.ValidationFailed(name, "invalid id")
	}
	return id, nil
}
