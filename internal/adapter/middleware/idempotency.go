package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"loan-submission-queue/internal/domain/session"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "Ax-Request-Id"
	HeaderRequestAt = "Ax-Request-At"

	// reservation held while the handler runs
	inProgressTTL = 60 * time.Second
	maxClockSkew  = 10 * time.Minute
	storeTimeout  = 2 * time.Second
)

// Idempotency replays the stored response of a mutating request retried with
// the same Ax-Request-Id by the same user.
type Idempotency struct {
	rdb  *redis.Client
	ttl  time.Duration
	sess session.Provider
	log  *zap.Logger
}

func NewIdempotency(rdb *redis.Client, ttl time.Duration, sess session.Provider, log *zap.Logger) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: ttl, sess: sess, log: log}
}

func errJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func (m *Idempotency) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			reqID := strings.ToLower(strings.TrimSpace(req.Header.Get(HeaderRequestID)))
			if reqID == "" {
				return errJSON(c, http.StatusBadRequest, "missing "+HeaderRequestID)
			}
			if !validRequestID(reqID) {
				return errJSON(c, http.StatusBadRequest, "invalid "+HeaderRequestID+" format")
			}
			reqAt, err := parseRequestAt(req.Header.Get(HeaderRequestAt))
			if err != nil {
				return errJSON(c, http.StatusBadRequest, err.Error())
			}
			if now := nowUTC(); reqAt.Before(now.Add(-maxClockSkew)) || reqAt.After(now.Add(maxClockSkew)) {
				return errJSON(c, http.StatusBadRequest, HeaderRequestAt+" too skewed")
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			userID, ok := m.sess.UserID(req.Context())
			if !ok {
				userID = "anonymous"
			}
			key := buildKey(req.Method, c.Path(), userID, reqID)
			hash := bodyHash(body)

			ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
			defer cancel()
			reserved, err := reserve(ctx, m.rdb, key, entry{InProgress: true, BodySHA256: hash, RequestAtMS: reqAt.UnixMilli()})
			if err != nil {
				m.log.Warn("idempotency store unavailable", zap.String("key", key), zap.Error(err))
				return errJSON(c, http.StatusServiceUnavailable, "idempotency store unavailable")
			}
			if !reserved {
				return m.replay(ctx, c, key, hash)
			}

			tee := &teeWriter{ResponseWriter: c.Response().Writer}
			c.Response().Writer = tee
			if err := next(c); err != nil {
				c.Error(err)
			}
			final := entry{
				Code:        c.Response().Status,
				Body:        tee.buf.Bytes(),
				BodySHA256:  hash,
				RequestAtMS: reqAt.UnixMilli(),
			}
			// server errors are not replayed; the client may retry them
			if final.Code >= http.StatusInternalServerError {
				err = m.rdb.Del(context.WithoutCancel(ctx), key).Err()
			} else {
				err = store(context.WithoutCancel(ctx), m.rdb, key, final, m.ttl)
			}
			if err != nil {
				m.log.Warn("idempotency record not saved", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

func (m *Idempotency) replay(ctx context.Context, c echo.Context, key, hash string) error {
	cur, err := load(ctx, m.rdb, key)
	if err != nil {
		m.log.Warn("idempotency record unreadable", zap.String("key", key), zap.Error(err))
		return errJSON(c, http.StatusConflict, "request is already in progress")
	}
	if cur.BodySHA256 != "" && cur.BodySHA256 != hash {
		return errJSON(c, http.StatusConflict, HeaderRequestID+" reused with different body")
	}
	if cur.InProgress || cur.Code == 0 {
		return errJSON(c, http.StatusConflict, "request is already in progress")
	}
	c.Response().Header().Set("Idempotent-Replayed", "true")
	return c.Blob(cur.Code, echo.MIMEApplicationJSON, cur.Body)
}

// teeWriter copies the response body while passing it through.
type teeWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
