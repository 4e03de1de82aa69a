package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// setCORSHeaders sets the headers every relay response carries.
func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

// ServeHTTP handles GET /preview?url=<upstream>.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	setCORSHeaders(w.Header())

	switch req.Method {
	case http.MethodGet:
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	target := req.URL.Query().Get("url")
	payload, err := r.Fetch(req.Context(), target)
	if err != nil {
		var upstream *UpstreamError
		switch {
		case errors.Is(err, ErrInvalidTarget):
			writeError(w, http.StatusBadRequest, "invalid preview url")
		case errors.As(err, &upstream):
			r.logger.Warn().Int("status", upstream.Status).Str("url", target).Msg("preview upstream refused")
			writeError(w, upstream.Status, "failed to fetch preview")
		case errors.Is(err, ErrPayloadTooLarge):
			r.logger.Warn().Str("url", target).Msg("preview exceeds size limit")
			writeError(w, http.StatusBadGateway, "preview too large")
		default:
			r.logger.Error().Err(err).Str("url", target).Msg("preview relay failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h := w.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(r.maxAge.Seconds())))
	h.Set("Content-Length", strconv.Itoa(len(payload.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload.Body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
