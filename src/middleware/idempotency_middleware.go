package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fincil-server/src/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	IdempotencyTTL    = 24 * time.Hour
	maxIdempotencyKey = 255
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// pendingTTL bounds how long a claim survives a process that died mid-request.
const pendingTTL = time.Minute

// pendingMarker is stored while the first request for a key is running.
var pendingMarker = []byte(`{"status":0}`)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response so it can be stored after the handler runs.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key from the same user on the same path. Requests without the
// header pass through. The key is claimed before the handler runs, so a
// second request arriving while the first is in flight gets 409. Only
// responses below 500 are stored, so a failed request can be retried with the
// same key.
func IdempotencyMiddleware(store IdempotencyStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				WriteError(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}

			log := logger.FromContext(r.Context())
			userID, _ := UserIDFromContext(r.Context())
			storeKey := fmt.Sprintf("%d:%s:%s", userID, r.URL.Path, key)

			claimed, err := store.SetNX(r.Context(), storeKey, pendingMarker, pendingTTL)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("idempotency claim failed")
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				replay(w, r, store, storeKey)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			defer func() {
				// the client already has its response; use a fresh context
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
				defer cancel()

				if capture.status == 0 || capture.status >= http.StatusInternalServerError {
					if err := store.Delete(ctx, storeKey); err != nil {
						log.Warn().Err(err).Str("path", r.URL.Path).Msg("failed to release idempotency key")
					}
					return
				}
				raw, err := json.Marshal(storedResponse{
					Status:      capture.status,
					ContentType: w.Header().Get("Content-Type"),
					Body:        capture.body.Bytes(),
				})
				if err == nil {
					err = store.Set(ctx, storeKey, raw, ttl)
				}
				if err != nil {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("failed to store idempotent response")
					_ = store.Delete(ctx, storeKey)
				}
			}()
			next.ServeHTTP(capture, r)
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, storeKey string) {
	raw, ok, err := store.Get(r.Context(), storeKey)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("idempotency lookup failed")
		WriteError(w, http.StatusServiceUnavailable, "could not check Idempotency-Key")
		return
	}
	var resp storedResponse
	if ok {
		if err := json.Unmarshal(raw, &resp); err != nil {
			resp = storedResponse{}
		}
	}
	if resp.Status == 0 {
		// either still running or released between SetNX and Get
		WriteError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
		return
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
