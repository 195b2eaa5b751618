package config

import (
	"github.com/jwalitptl/bloodbank/internal/email"
	"github.com/jwalitptl/bloodbank/pkg/auth"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/messaging"
	"github.com/jwalitptl/bloodbank/pkg/messaging/redis"
	"github.com/jwalitptl/bloodbank/pkg/worker"
)

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		Channel:       messaging.ChannelDomainEvents,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:             c.URL,
		MaxRetries:      c.MaxRetries,
		RetryBackoff:    c.RetryBackoff,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		BreakerFailures: c.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout,
	}
}

func (c *SMTPConfig) ToEmailConfig() email.Config {
	return email.Config{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

func (c *JWTConfig) ToAuthConfig() auth.Config {
	return auth.Config{Secret: c.Secret, Issuer: c.Issuer, AccessTTL: c.Expiry}
}

func (c *LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		JSON:       c.Format != "console",
	}
}
