package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spin-stack/vrouter-vif/internal/driver"
	"github.com/spin-stack/vrouter-vif/internal/version"
	"github.com/spin-stack/vrouter-vif/internal/vif"
)

const maxBodyBytes = 1 << 20

// PlugRequest is the body of POST /v1/plug and POST /v1/unplug.
type PlugRequest struct {
	Instance vif.Instance `json:"instance"`
	VIF      vif.VIF      `json:"vif"`
}

// AttachRequest is the body of POST /v1/attach.
type AttachRequest struct {
	Instance    vif.Instance `json:"instance"`
	VIF         vif.VIF      `json:"vif"`
	ContainerID string       `json:"container_id"`
	Index       int          `json:"index"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) plug(w http.ResponseWriter, r *http.Request) {
	var req PlugRequest
	if err := decode(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := validateInstance(req.Instance); err != nil {
		respondError(r.Context(), w, err)
		return
	}

	if err := s.lc.Plug(r.Context(), req.Instance, req.VIF); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attach(w http.ResponseWriter, r *http.Request) {
	var req AttachRequest
	if err := decode(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if err := validateInstance(req.Instance); err != nil {
		respondError(r.Context(), w, err)
		return
	}

	result, err := s.lc.Attach(r.Context(), req.Instance, req.VIF, req.ContainerID, req.Index)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, result)
}

func (s *Server) unplug(w http.ResponseWriter, r *http.Request) {
	var req PlugRequest
	if err := decode(w, r, &req); err != nil {
		respondError(r.Context(), w, err)
		return
	}

	// Unplug reports problems through logs and metrics only.
	_ = s.lc.Unplug(r.Context(), req.Instance, req.VIF)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	all, err := s.lc.Attachments(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{
		"attachments": all,
		"count":       len(all),
	})
}

func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) {
	a, err := s.lc.Attachment(r.Context(), chi.URLParam(r, "vif"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, a)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	return nil
}

func validateInstance(inst vif.Instance) error {
	if _, err := uuid.Parse(inst.UUID); err != nil {
		return fmt.Errorf("instance uuid %q: %v: %w", inst.UUID, err, errdefs.ErrInvalidArgument)
	}
	return nil
}

// statusFor maps lifecycle and collaborator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, driver.ErrPortRejected):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsFailedPrecondition(err):
		return http.StatusPreconditionFailed
	case errdefs.IsPermissionDenied(err):
		return http.StatusForbidden
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errdefs.IsNotImplemented(err):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.G(ctx).WithError(err).Error("failed to encode JSON response")
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	entry := log.G(ctx).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("API error")
	} else {
		entry.Warn("API error")
	}
	respondJSON(ctx, w, status, errorResponse{Error: err.Error()})
}
