// Package typing keeps a platform typing indicator alive while a reply is
// being generated.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures a Controller. Discord's indicator expires after 10s,
// so the keepalive must fire more often than that.
type Options struct {
	MaxDuration       time.Duration
	KeepaliveInterval time.Duration
	StartFn           func() error
}

// Controller re-fires the typing indicator until stopped or the TTL
// elapses. The TTL guards against stuck indicators when a caller forgets
// to stop.
type Controller struct {
	opts Options
	stop chan struct{}
	once sync.Once
}

func New(opts Options) *Controller {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 9 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}
	return &Controller{opts: opts, stop: make(chan struct{})}
}

// Start fires the indicator immediately and keeps it alive in the
// background.
func (c *Controller) Start() {
	if err := c.opts.StartFn(); err != nil {
		slog.Debug("typing indicator failed", "error", err)
	}
	go c.loop()
}

// Stop ends the keepalive. Safe to call more than once.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Controller) loop() {
	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.opts.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			if err := c.opts.StartFn(); err != nil {
				slog.Debug("typing keepalive failed", "error", err)
			}
		}
	}
}
