package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vbonduro/homeinv/internal/auth"
	"github.com/vbonduro/homeinv/internal/filestore"
	"github.com/vbonduro/homeinv/internal/optimistic"
	"github.com/vbonduro/homeinv/internal/remote"
	"github.com/vbonduro/homeinv/internal/repository"
	"github.com/vbonduro/homeinv/internal/service"
	"github.com/vbonduro/homeinv/internal/tree"
	"github.com/vbonduro/homeinv/internal/validate"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON request body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeError(err)
	}
	return nil
}

func decodeError(err error) error {
	return validate.FieldError("body", fmt.Sprintf("invalid JSON: %v", err))
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	var (
		validationErr *validate.Error
		notAuthErr    *auth.NotAuthenticatedError
		notFoundErr   *repository.NotFoundError
		uncachedErr   *optimistic.NotFoundError
		cycleErr      *tree.CyclicHierarchyError
		remoteErr     *remote.Error
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notAuthErr), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.As(err, &notFoundErr), errors.As(err, &uncachedErr), errors.Is(err, filestore.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &cycleErr), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrVisionDisabled), errors.Is(err, service.ErrFilesDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		body.Fields = validationErr.Fields
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}
