package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"huawei-solar/internal/inverter"
	"huawei-solar/internal/mqtt"
	"huawei-solar/internal/registers"

	"go.uber.org/zap"
)

// Dialer opens a new inverter session.
type Dialer func() (*inverter.Session, error)

// Collector owns access to the inverter: each query gets its own session and
// queries never overlap. Results are handed out, never kept.
type Collector struct {
	dial      Dialer
	publisher *mqtt.Publisher
	interval  time.Duration
	selection string
	discovery bool
	logger    *zap.Logger

	sessionMu sync.Mutex
	running   sync.WaitGroup

	mu           sync.RWMutex
	isCollecting bool
	announced    bool
	// deviceID is pinned from the first result carrying a serial number so
	// that state and discovery topics never diverge.
	deviceID string
}

type CollectorConfig struct {
	Dial      Dialer
	Publisher *mqtt.Publisher
	Interval  time.Duration
	Selection string
	Discovery bool
	Logger    *zap.Logger
}

// withSerialNumber makes sure the periodic selection names the device.
func withSerialNumber(selection string) string {
	names, all := inverter.ParseSelection(selection)
	if len(names) == 0 {
		return inverter.SelectAll
	}
	if all {
		return selection
	}
	for _, name := range names {
		if name == registers.SerialNumber.Name {
			return selection
		}
	}
	return selection + "," + registers.SerialNumber.Name
}

func NewCollector(cfg CollectorConfig) *Collector {
	return &Collector{
		dial:      cfg.Dial,
		publisher: cfg.Publisher,
		interval:  cfg.Interval,
		selection: withSerialNumber(cfg.Selection),
		discovery: cfg.Discovery,
		logger:    cfg.Logger,
	}
}

// Start publishes a query result every interval until ctx is done. Without an
// enabled publisher there is nothing to do and Start returns at once.
func (c *Collector) Start(ctx context.Context) error {
	if c.publisher == nil || !c.publisher.Enabled() {
		c.logger.Info("Collector is disabled")
		return nil
	}
	if c.interval <= 0 {
		return fmt.Errorf("collector interval must be positive, got %s", c.interval)
	}

	c.running.Add(1)
	defer c.running.Done()
	if ctx.Err() != nil {
		return nil
	}

	c.mu.Lock()
	c.isCollecting = true
	c.mu.Unlock()

	c.logger.Info("Starting collector", zap.Duration("interval", c.interval), zap.String("selection", c.selection))

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Collector stopped")
			c.mu.Lock()
			c.isCollecting = false
			c.mu.Unlock()
			return nil
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	res, err := c.Query(c.selection)
	if err != nil {
		c.logger.Error("Error connecting to inverter", zap.Error(err))
		return
	}

	deviceID, ok := c.device(res)
	if !ok {
		c.logger.Warn("Serial number not read yet, skipping publish", zap.Int("quantities", len(res)))
		return
	}

	if c.discovery {
		c.announce(deviceID, res)
	}
	if err := c.publisher.Publish(deviceID, res); err != nil {
		c.logger.Warn("Error publishing to MQTT", zap.Error(err))
	}

	c.logger.Info("Collected", zap.String("device", deviceID), zap.Int("quantities", len(res)))
}

func (c *Collector) device(res inverter.Result) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deviceID != "" {
		return c.deviceID, true
	}
	if v, ok := res[registers.SerialNumber.Name]; ok && v.IsText() && v.Text() != "" {
		c.deviceID = v.Text()
		return c.deviceID, true
	}
	return "", false
}

// announce sends Home Assistant discovery once.
func (c *Collector) announce(deviceID string, res inverter.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.announced {
		return
	}

	model := "inverter"
	if v, ok := res[registers.ModelName.Name]; ok && v.Text() != "" {
		model = v.Text()
	}
	if err := c.publisher.PublishHomeAssistantDiscovery(deviceID, model); err != nil {
		c.logger.Warn("Error publishing discovery", zap.Error(err))
		return
	}
	c.announced = true
}

// Query opens a session, runs selection and closes the session again. Only a
// failure to open the session is returned; per quantity failures are logged.
func (c *Collector) Query(selection string) (inverter.Result, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Warn("Error closing session", zap.Error(err))
		}
	}()

	return inverter.Query(session, selection, c.logger), nil
}

func (c *Collector) IsCollecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isCollecting
}

// Stop waits for a running Start to return, so call it after cancelling the
// context given to Start, then disconnects the publisher.
func (c *Collector) Stop() {
	c.running.Wait()
	if c.publisher != nil {
		c.publisher.Close()
	}
}
