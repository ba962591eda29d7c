package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

type Handler struct {
	api    *ServiceProxy
	logger *slog.Logger
}

func NewHandler(api *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		api:    api,
		logger: logger,
	}
}

// HandleAPI forwards the request unchanged to the api service.
func (h *Handler) HandleAPI(w http.ResponseWriter, r *http.Request) {
	resp, err := h.api.ForwardRequest(r.Context(), r)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", r.URL.Path)
		writeDetail(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", r.URL.Path, "status", resp.StatusCode,
		"request_id", r.Header.Get(HeaderRequestID))

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

// writeDetail writes the {"detail": ...} error body clients of the store
// API already expect from the edge.
func writeDetail(w http.ResponseWriter, logger *slog.Logger, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}
