package bootstrap

import (
	"log"
	"net/http"

	"portfolio-chat/internal/config"
	"portfolio-chat/internal/controller"
	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/internal/service"
	"portfolio-chat/pkg/events"
	pktNats "portfolio-chat/pkg/nats"
)

type Container struct {
	// Controllers
	ProxyController controller.IProxyController

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the proxy. NATS is optional: without it audit events
// are dropped.
func NewContainer(cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	return newContainer(cfg, sysLogger, connectAudit(cfg, sysLogger))
}

func connectAudit(cfg *config.Config, sysLogger logger.ILogger) events.Publisher {
	if cfg.App.NatsURL == "" {
		return events.NopBus{}
	}
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		return events.NopBus{}
	}
	return natsPub
}

func newContainer(cfg *config.Config, sysLogger logger.ILogger, audit events.Publisher) *Container {
	c := &Container{Logger: sysLogger}
	if closer, ok := audit.(interface{ Close() }); ok {
		c.closers = append(c.closers, closer.Close)
	}

	proxyService := service.NewProxyService(cfg.Upstream, &http.Client{}, audit, sysLogger)
	c.ProxyController = controller.NewProxyController(proxyService)

	return c
}

// NewTestContainer builds a container around a caller-provided logger and
// audit publisher.
func NewTestContainer(cfg *config.Config, sysLogger logger.ILogger, audit events.Publisher) *Container {
	return newContainer(cfg, sysLogger, audit)
}

func (c *Container) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
}
