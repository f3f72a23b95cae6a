package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type toolInfo struct {
	Intent      string `json:"intent"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	intents := h.registry.Intents()
	tools := make([]toolInfo, 0, len(intents))
	for _, intent := range intents {
		t := h.registry.Lookup(intent)
		if t == nil {
			continue
		}
		tools = append(tools, toolInfo{
			Intent:      intent,
			Name:        t.Name(),
			Description: t.Description(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"tools": tools})
}

func (h *Handler) handleRecentUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeError(w, http.StatusNotFound, "usage tracking is not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	records, err := h.usage.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage records")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"records": records})
}
