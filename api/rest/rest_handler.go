package rest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/service"
	"go.uber.org/zap"
)

const accessKeyHeader = "X-Access-Key"

type Handler struct {
	Service *service.Service
	logger  *zap.Logger
}

func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	return &Handler{Service: svc, logger: logger}
}

type positionResponse struct {
	Page int `json:"page"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleRights reports the caller's view/print decision. Denials are a normal response.
func (h *Handler) HandleRights(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}
	rights := h.Service.ResolveRights(r.Context(), r.PathValue("id"), creds)
	h.sendResponse(w, http.StatusOK, rights)
}

func (h *Handler) HandleAnnotations(w http.ResponseWriter, r *http.Request) {
	documentId, ok := h.authorizeView(w, r)
	if !ok {
		return
	}
	annotations, err := h.Service.LoadAnnotations(r.Context(), documentId)
	if err != nil {
		h.logger.Error("load annotations failed", zap.String("documentId", documentId), zap.Error(err))
		http.Error(w, "failed to load annotations", http.StatusInternalServerError)
		return
	}
	h.sendResponse(w, http.StatusOK, annotations)
}

func (h *Handler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	documentId, ok := h.authorizeView(w, r)
	if !ok {
		return
	}
	page, err := h.Service.LoadPosition(r.Context(), documentId)
	if err != nil {
		h.logger.Error("load position failed", zap.String("documentId", documentId), zap.Error(err))
		http.Error(w, "failed to load position", http.StatusInternalServerError)
		return
	}
	h.sendResponse(w, http.StatusOK, positionResponse{Page: page})
}

func (h *Handler) authorizeView(w http.ResponseWriter, r *http.Request) (string, bool) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return "", false
	}
	documentId := r.PathValue("id")
	rights := h.Service.ResolveRights(r.Context(), documentId, creds)
	if !rights.CanView {
		h.sendResponse(w, http.StatusForbidden, errorResponse{Error: rights.Reason})
		return "", false
	}
	return documentId, true
}

func (h *Handler) credentials(w http.ResponseWriter, r *http.Request) (models.CredentialContext, bool) {
	creds, err := h.Service.Credentials(r.Context(), r.Header.Get(accessKeyHeader), h.getTokenFromAuthHeader(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return models.CredentialContext{}, false
	}
	return creds, true
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}
