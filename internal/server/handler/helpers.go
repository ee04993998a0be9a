package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it with the given status code. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields and
// trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// userParam parses the {user} path value.
func userParam(r *http.Request) (int64, error) {
	raw := r.PathValue("user")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// assetParam returns the normalized {asset} path value.
func assetParam(r *http.Request) string {
	return domain.NormalizeAsset(r.PathValue("asset"))
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPosition), errors.Is(err, domain.ErrInvalidThreshold):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPriceUnavailable), errors.Is(err, domain.ErrNoProductID):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs unexpected failures and writes the mapped status.
// Client errors carry the error text; server errors a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		if status == http.StatusInternalServerError {
			writeError(w, status, op+" failed")
			return
		}
	}
	writeError(w, status, err.Error())
}

// parseListOpts extracts pagination and filters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 50}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
		opts.Limit = min(n, 500)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid offset %q", v)
		}
		opts.Offset = n
	}
	if v := q.Get("user"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid user %q", v)
		}
		opts.UserID = n
	}
	opts.Asset = domain.NormalizeAsset(q.Get("asset"))
	opts.Event = strings.TrimSpace(q.Get("event"))
	if v := q.Get("since"); v != "" {
		t, err := parseSince(v, time.Now())
		if err != nil {
			return opts, err
		}
		opts.Since = &t
	}
	return opts, nil
}

// parseSince accepts an RFC3339 timestamp or a lookback duration ("24h").
func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q", v)
	}
	return now.Add(-d), nil
}
