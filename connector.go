package connector

import (
	"context"
	"errors"
	"fmt"
	protocol "github.com/influxdata/line-protocol"
	"github.com/tilinna/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"net/http"
	"sync"
)

var (
	ErrNotConfigured = errors.New("connector is not configured")
	ErrInvalidURL    = errors.New("invalid InfluxDB URL")
)

// ErrorListener receives errors that are logged but not returned to the caller, such as
// batches rejected by InfluxDB. It may be called while the connector holds its lock, so it
// must not call back into the connector.
type ErrorListener func(err error)

type Config struct {
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Runtime provides the exception notifications. When nil, exceptionName settings are ignored.
	Runtime Runtime
	ErrorListener
}

// Connector is driven by an external collector: Configure once, Submit for every sampled
// value and EndOfCycle after every polling pass. All methods are safe for concurrent use.
type Connector interface {
	Configure(settings Settings) error
	// Submit writes one value. A nil value is skipped without opening a connection.
	Submit(name, metricType string, value interface{}) error
	// SubmitMetric writes the "value" field of m.
	SubmitMetric(m protocol.Metric) error
	SubmitInvocation(name string, value interface{}) error
	// EndOfCycle subscribes pending exception notifications and flushes the batch when it
	// is full or old enough.
	EndOfCycle() error
	// Close flushes the open batch and cancels the notification subscriptions.
	Close() error
}

// NewConnector creates an unconfigured connector. Cancelling ctx aborts the batch in flight.
// The clock attached to ctx with clock.Context is used for timestamps and batch age.
func NewConnector(ctx context.Context, config Config) (Connector, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &connectorImpl{
		ctx:    ctx,
		config: config,
		logger: logger,
	}, nil
}

type connectorImpl struct {
	ctx    context.Context
	config Config
	logger *zap.Logger

	// mu guards everything below, including the connection and batch counters which are
	// shared with the notification dispatch goroutine.
	mu         sync.Mutex
	configured bool
	writeURL   string
	urlErr     error
	formatter  lineFormatter
	policy     batchPolicy
	counters   batchCounters
	conn       *connManager
	bridge     *notificationBridge
}

func (c *connectorImpl) Configure(settings Settings) error {
	settings = settings.withDefaults()
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		if err := c.conn.shutdown(); err != nil {
			c.logger.Warn("Failed to flush batch while reconfiguring", zap.Error(err))
		}
	}
	oldBridge := c.bridge

	c.writeURL, c.urlErr = composeWriteURL(settings)
	if c.urlErr != nil {
		c.logger.Error("Invalid write URL", zap.Stringer("settings", settings), zap.Error(c.urlErr))
	}
	c.formatter = lineFormatter{namePrefix: settings.NamePrefix, tags: settings.Tags}
	c.policy = batchPolicy{maxWrites: settings.BatchSize, maxAge: settings.BatchTimeout}
	c.counters = c.policy.reset(clock.Now(c.ctx))
	c.conn = newConnManager(c.ctx, settings.ConnectTimeout, c.logger, c.reportError)
	c.bridge = newNotificationBridge(c.config.Runtime, settings.ExceptionNames, c.forwardNotification, c.logger)
	c.configured = true
	client := c.conn.client
	bridge := c.bridge
	c.mu.Unlock()

	if oldBridge != nil {
		if err := oldBridge.close(); err != nil {
			c.logger.Warn("Failed to cancel notification subscriptions", zap.Error(err))
		}
	}

	c.logger.Info("Line protocol connector is configured",
		zap.Stringer("settings", settings),
		zap.Int("batchSize", settings.BatchSize),
		zap.Duration("batchTimeout", settings.BatchTimeout))

	c.bootstrap(client, settings)
	bridge.scan()
	return nil
}

// bootstrap creates the database. Failures are only logged since writes report their own
// errors.
func (c *connectorImpl) bootstrap(client *http.Client, settings Settings) {
	ctx, cancel := context.WithTimeout(c.ctx, settings.ConnectTimeout)
	defer cancel()

	code, err := createDatabase(ctx, client, settings)
	if err != nil {
		c.logger.Warn("Failed to create database",
			zap.String("database", settings.Database),
			zap.Int("code", code),
			zap.Error(err))
		c.reportError(err)
		return
	}
	c.logger.Debug("Created database", zap.String("database", settings.Database), zap.Int("code", code))
}

func (c *connectorImpl) Submit(name, metricType string, value interface{}) error {
	m := NewSample(name, metricType, value)
	m.SetTime(clock.Now(c.ctx))
	return c.SubmitMetric(m)
}

func (c *connectorImpl) SubmitInvocation(name string, value interface{}) error {
	return c.Submit(name, "", value)
}

func (c *connectorImpl) SubmitMetric(m protocol.Metric) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.configured {
		return ErrNotConfigured
	}

	line, ok := c.formatter.format(m, clock.Now(c.ctx))
	if !ok {
		c.logger.Debug("Skipping metric without name or value", zap.String("name", m.Name()))
		return nil
	}

	if c.urlErr != nil {
		err := fmt.Errorf("%w: %w", ErrInvalidURL, c.urlErr)
		c.logger.Error("Unable to open write stream", zap.String("name", m.Name()), zap.Error(err))
		return err
	}
	if _, err := c.conn.ensure(c.writeURL); err != nil {
		c.logger.Error("Unable to open write stream", zap.String("name", m.Name()), zap.Error(err))
		return err
	}
	if err := c.conn.write(line); err != nil {
		c.counters = c.policy.reset(clock.Now(c.ctx))
		c.logger.Error("Failed to send metric to InfluxDB", zap.String("name", m.Name()), zap.Error(err))
		return err
	}
	c.counters = c.policy.recordWrite(c.counters)
	return nil
}

func (c *connectorImpl) EndOfCycle() error {
	c.mu.Lock()
	configured, bridge := c.configured, c.bridge
	c.mu.Unlock()
	if !configured {
		return ErrNotConfigured
	}

	bridge.scan()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.conn.isOpen() {
		return nil
	}
	now := clock.Now(c.ctx)
	if !c.policy.shouldFlush(c.counters, now) {
		return nil
	}

	lines := c.counters.writeCount
	err := c.conn.release()
	c.counters = c.policy.reset(now)
	if err != nil {
		c.logger.Error("Failed to flush batch", zap.Int("lines", lines), zap.Error(err))
		return err
	}
	c.logger.Debug("Flushed batch", zap.Int("lines", lines))
	return nil
}

func (c *connectorImpl) Close() error {
	c.mu.Lock()
	var err error
	if c.conn != nil {
		err = c.conn.shutdown()
		c.counters = c.policy.reset(clock.Now(c.ctx))
	}
	bridge := c.bridge
	c.bridge = nil
	c.configured = false
	c.mu.Unlock()

	if bridge != nil {
		err = multierr.Append(err, bridge.close())
	}
	return err
}

func (c *connectorImpl) forwardNotification(n Notification) {
	if n.Type == "" {
		c.logger.Debug("Ignoring exception notification without type")
		return
	}
	if err := c.Submit(n.Type, "", n.Message); err != nil {
		c.logger.Warn("Failed to write exception notification", zap.String("type", n.Type), zap.Error(err))
		c.reportError(err)
	}
}

func (c *connectorImpl) reportError(err error) {
	if c.config.ErrorListener != nil {
		c.config.ErrorListener(err)
	}
}
