package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/contact-dialer/internal/broadcast"
	"github.com/acme/contact-dialer/internal/config"
	"github.com/acme/contact-dialer/internal/engine"
	"github.com/acme/contact-dialer/internal/mirror"
	"github.com/acme/contact-dialer/internal/telephony"
	telephonyMock "github.com/acme/contact-dialer/internal/telephony/mock"
	telephonySIP "github.com/acme/contact-dialer/internal/telephony/sip"
	"github.com/acme/contact-dialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Provider telephony.Provider

	// lazily initialised components
	components struct {
		once     sync.Once
		registry *broadcast.Registry
		mirror   *mirror.EventPublisher
		kafka    *mirror.Kafka
		engine   *engine.Engine
	}
}

// Build constructs a container for the given configuration path. A telephony
// provider that fails to initialise aborts the bootstrap: the engine has no
// function without it.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	var provider telephony.Provider
	if cfg.SIP.Enabled {
		sipProvider, err := telephonySIP.NewProvider(cfg.SIP, lg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap telephony: %w", err)
		}
		provider = sipProvider
	} else {
		provider = telephonyMock.NewProvider()
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Provider: provider,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		c.components.registry = broadcast.NewRegistry(c.Config.Broadcast, c.Logger)

		if c.Config.Kafka.Enabled() {
			k, err := mirror.NewKafka(c.Config.Kafka)
			if err != nil {
				c.Logger.Warn(fmt.Sprintf("event mirror disabled: %v", err))
			} else {
				c.components.kafka = k
				c.components.mirror = mirror.NewEventPublisher(k, c.Config.Kafka.EventTopic)
			}
		}

		var eventMirror engine.EventMirror
		if c.components.mirror != nil {
			eventMirror = c.components.mirror
		}

		c.components.engine = engine.New(c.Config, c.Provider, c.components.registry, eventMirror, c.Logger)
	})
}

// Engine exposes the initialized call engine.
func (c *Container) Engine() *engine.Engine {
	c.initComponents()
	return c.components.engine
}

// Registry exposes the display-client registry.
func (c *Container) Registry() *broadcast.Registry {
	c.initComponents()
	return c.components.registry
}

// EnsureEventTopic creates the mirror topic when mirroring is enabled.
func (c *Container) EnsureEventTopic(ctx context.Context) error {
	c.initComponents()
	if c.components.kafka == nil {
		return nil
	}
	return c.components.kafka.EnsureTopic(ctx, c.Config.Kafka.EventTopic, 12)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.mirror != nil {
		if err := c.components.mirror.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event mirror close: %w", err))
		}
	}
	if closer, ok := c.Provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("telephony close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
