package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"huawei-solar/internal/inverter"
	"huawei-solar/internal/registers"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const defaultDeviceID = "inverter"

// DefaultTimeout bounds the broker connect and every publish.
const DefaultTimeout = 10 * time.Second

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	timeout     time.Duration
	logger      *zap.Logger
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
	Timeout     time.Duration
}

// NewPublisher connects to the broker once. An unreachable broker is an
// error after cfg.Timeout; reconnects only happen after a first success.
func NewPublisher(cfg PublisherConfig, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false, logger: logger}, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect(), timeout); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	p := NewPublisherFromClient(client, cfg.TopicPrefix, logger)
	p.timeout = timeout
	return p, nil
}

// NewPublisherFromClient wraps an already connected client.
func NewPublisherFromClient(client mqtt.Client, topicPrefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		enabled:     true,
		timeout:     DefaultTimeout,
		logger:      logger,
	}
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return token.Error()
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

// DeviceID names the inverter in topics: its serial number when the result
// carries one.
func DeviceID(res inverter.Result) string {
	if v, ok := res[registers.SerialNumber.Name]; ok && v.IsText() && v.Text() != "" {
		return v.Text()
	}
	return defaultDeviceID
}

func (p *Publisher) stateTopic(deviceID, name string) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, deviceID, name)
}

// Publish sends every quantity of res to its own topic and the whole result
// as retained JSON on <prefix>/<deviceID>/status.
func (p *Publisher) Publish(deviceID string, res inverter.Result) error {
	if !p.enabled {
		return nil
	}

	var errs []error
	for _, name := range res.Keys() {
		topic := p.stateTopic(deviceID, name)
		if err := wait(p.client.Publish(topic, 0, false, res[name].String()), p.timeout); err != nil {
			p.logger.Warn("Failed to publish", zap.String("topic", topic), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
		}
	}

	statusJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := wait(p.client.Publish(p.stateTopic(deviceID, "status"), 0, true, statusJSON), p.timeout); err != nil {
		errs = append(errs, fmt.Errorf("failed to publish status: %w", err))
	}

	return errors.Join(errs...)
}

var deviceClasses = map[string]string{
	"W":   "power",
	"V":   "voltage",
	"A":   "current",
	"Hz":  "frequency",
	"°C":  "temperature",
	"kWh": "energy",
}

// PublishHomeAssistantDiscovery announces one sensor per catalog register.
func (p *Publisher) PublishHomeAssistantDiscovery(deviceID, model string) error {
	if !p.enabled {
		return nil
	}

	for _, reg := range registers.All() {
		discoveryTopic := fmt.Sprintf("homeassistant/sensor/huawei_solar_%s/%s/config", deviceID, reg.Name)

		config := map[string]interface{}{
			"name":        reg.Name,
			"unique_id":   fmt.Sprintf("huawei_solar_%s_%s", deviceID, reg.Name),
			"state_topic": p.stateTopic(deviceID, reg.Name),
			"device": map[string]interface{}{
				"identifiers":  []string{"huawei_solar_" + deviceID},
				"name":         "Huawei " + model,
				"manufacturer": "Huawei",
				"model":        model,
			},
		}

		if reg.Unit != "" && reg.Unit != "s" {
			config["unit_of_measurement"] = reg.Unit
		}
		if class, ok := deviceClasses[reg.Unit]; ok {
			config["device_class"] = class
		}
		if reg.Unit == "kWh" {
			config["state_class"] = "total_increasing"
		}

		payload, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal discovery for %s: %w", reg.Name, err)
		}
		if err := wait(p.client.Publish(discoveryTopic, 0, true, payload), p.timeout); err != nil {
			return fmt.Errorf("failed to publish discovery for %s: %w", reg.Name, err)
		}
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
