package remote

import (
	"strings"
	"time"

	"loan-submission-queue/internal/domain/remoteerr"

	"github.com/go-resty/resty/v2"
)

// envelope is the backend's response wrapper.
type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *apiError) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// NewClient builds the resty client shared by the backend adapters.
func NewClient(baseURL, token string, timeout time.Duration) *resty.Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// check turns a resty outcome into nil or a classified remote error.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return remoteerr.Network(err)
	}
	if !resp.IsError() && resp.StatusCode() < 300 {
		return nil
	}
	msg := ""
	if e, ok := resp.Error().(*apiError); ok {
		msg = e.text()
	}
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return remoteerr.FromStatus(resp.StatusCode(), msg)
}
