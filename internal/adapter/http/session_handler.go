package http

import (
	"net/http"
	"strconv"

	"loan-submission-queue/internal/adapter/notifier"
	"loan-submission-queue/internal/adapter/session"
	domainsession "loan-submission-queue/internal/domain/session"
	uc "loan-submission-queue/internal/usecase/submission"

	"github.com/labstack/echo/v4"
)

// SessionHandler stands in for the app's login flow: it writes the cached
// user id the queue reads.
type SessionHandler struct {
	store *session.RedisProvider
	m     *uc.Manager
}

func NewSessionHandler(store *session.RedisProvider, m *uc.Manager) *SessionHandler {
	return &SessionHandler{store: store, m: m}
}

type loginReq struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *SessionHandler) Login(c echo.Context) error {
	var req loginReq
	if bad := bindAndValidate(c, &req); bad != nil {
		return c.JSON(http.StatusBadRequest, bad)
	}
	if err := h.store.SetUserID(c.Request().Context(), req.UserID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Logout forgets the user. With ?purge=true their queued work is dropped too.
func (h *SessionHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if purge, _ := strconv.ParseBool(c.QueryParam("purge")); purge {
		if userID, ok := h.store.UserID(ctx); ok {
			if err := h.m.ClearUser(ctx, userID); err != nil {
				return writeError(c, err)
			}
		}
	}
	if err := h.store.Clear(ctx); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// NotificationHandler serves the local feed of the logged-in user.
type NotificationHandler struct {
	sink *notifier.RedisSink
	sess domainsession.Provider
}

func NewNotificationHandler(sink *notifier.RedisSink, sess domainsession.Provider) *NotificationHandler {
	return &NotificationHandler{sink: sink, sess: sess}
}

func (h *NotificationHandler) Recent(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := h.sess.UserID(ctx)
	if !ok {
		return c.JSON(http.StatusOK, []notifier.Notification{})
	}
	limit, err := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 20
	}
	out, err := h.sink.Recent(ctx, userID, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
