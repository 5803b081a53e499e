package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bikeshrana/pmbacktest/internal/auth"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "healthy", Timestamp: time.Now(), Checks: map[string]string{}}

		if ping != nil {
			if err := ping(r.Context()); err != nil {
				resp.Status = "unhealthy"
				resp.Checks["store"] = err.Error()
			} else {
				resp.Checks["store"] = "ok"
			}
		}

		status := http.StatusOK
		if resp.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func reportHandler(source ReportSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if source == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report not available"})
			return
		}
		writeJSON(w, http.StatusOK, source())
	}
}

type tokenRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

func issueTokenHandler(svc *auth.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Subject == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject is required"})
			return
		}
		if req.Role == "" {
			req.Role = "viewer"
		}

		token, err := svc.IssueToken(req.Subject, req.Role)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
