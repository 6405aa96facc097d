package main

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultHistoryLimit = 500

// handleHistory serves synthetic historical rows for any topic path
// under the API prefix, e.g. GET /api/v1/cell?limit=200. Rows are
// generated backwards from now at one sample per second.
func handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	topic := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPath), "/")
	if topic == "" {
		http.Error(w, "missing topic", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	now := time.Now().UnixMilli()
	rows := make([]map[string]any, limit)
	for i := range rows {
		t := float64(limit - i)
		rows[i] = map[string]any{
			"time":  now - int64(limit-i)*1000,
			"value": 50 + 20*math.Sin(t/30),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}
