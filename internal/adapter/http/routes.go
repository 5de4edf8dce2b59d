package http

import (
	"github.com/labstack/echo/v4"
)

type Routes struct {
	Health        *Handler
	Submissions   *SubmissionHandler
	Uploads       *UploadHandler
	Session       *SessionHandler
	Notifications *NotificationHandler
}

// RegisterRoutes mounts every non-nil handler group on e.
func RegisterRoutes(e *echo.Echo, r Routes) {
	if r.Health != nil {
		e.GET("/health", r.Health.Health)
	}

	if sub := r.Submissions; sub != nil {
		s := e.Group("/submissions")
		s.POST("", sub.Submit)
		s.GET("", sub.List)
		s.GET("/stream", sub.Stream)
		s.POST("/sweep", sub.Sweep)
		s.POST("/:loan_id/retry", sub.Retry)
		s.POST("/:loan_id/cancel", sub.Cancel)
		e.DELETE("/users/:user_id/queue", sub.ClearUser)
	}

	if up := r.Uploads; up != nil {
		d := e.Group("/drafts/:draft_id/documents")
		d.POST("", up.Queue)
		d.GET("", up.List)
		d.GET("/stream", up.Stream)
		d.GET("/status", up.Status)
		e.DELETE("/uploads/:upload_id", up.Cancel)
	}

	if r.Session != nil {
		e.PUT("/session", r.Session.Login)
		e.DELETE("/session", r.Session.Logout)
	}
	if r.Notifications != nil {
		e.GET("/notifications", r.Notifications.Recent)
	}
}
