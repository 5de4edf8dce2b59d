package connectivity

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Prober reports whether the backend is reachable by hitting a health URL.
type Prober struct {
	client   *resty.Client
	url      string
	interval time.Duration
	log      *zap.Logger
}

func NewProber(url string, interval, timeout time.Duration, log *zap.Logger) *Prober {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{
		client:   resty.New().SetTimeout(timeout),
		url:      url,
		interval: interval,
		log:      log,
	}
}

// Online is true when the health endpoint answered below 500.
func (p *Prober) Online(ctx context.Context) bool {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		p.log.Debug("connectivity probe failed", zap.String("url", p.url), zap.Error(err))
		return false
	}
	return resp.StatusCode() < 500
}

// Watch probes immediately and then every interval, sending each observation.
// The channel closes when ctx is done.
func (p *Prober) Watch(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)
	go func() {
		defer close(out)
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			online := p.Online(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- online:
			case <-ctx.Done():
				return
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
