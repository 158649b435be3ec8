package channel

import (
	"context"
	"time"

	"github.com/source-build/go-wrpc/flog"
	"go.uber.org/zap"
)

// startBackgroundLoops launches the two periodic tasks a Channel owns:
// endpoint refresh (re-polling the naming service) and health check
// (probing known-dead endpoints so they can rejoin the live set), mirroring
// wconn.Pool.StartIdleEviction's ticker+stop-channel idiom.
func (c *Channel) startBackgroundLoops() {
	c.stopRefresh = make(chan struct{})
	c.stopHealth = make(chan struct{})

	if c.opts.UpdateEndPointsInterval > 0 {
		go c.refreshLoop()
	}
	if c.opts.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	}
}

func (c *Channel) refreshLoop() {
	ticker := time.NewTicker(c.opts.UpdateEndPointsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.UpdateEndPointsInterval)
			if err := c.Refresh(ctx); err != nil {
				flog.Warn("[channel]: endpoint refresh failed", zap.String("address", c.address), zap.Error(err))
			}
			cancel()
		case <-c.stopRefresh:
			return
		}
	}
}

func (c *Channel) healthCheckLoop() {
	ticker := time.NewTicker(c.opts.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.manager.HealthCheck(c.runtime.HealthCheckConnectTO)
		case <-c.stopHealth:
			return
		}
	}
}
