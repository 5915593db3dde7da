package mqtt

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"huawei-solar/internal/inverter"
	"huawei-solar/internal/registers"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

// stuckToken never completes.
type stuckToken struct {
	doneToken
}

func (stuckToken) Wait() bool                     { select {} }
func (stuckToken) WaitTimeout(time.Duration) bool { return false }
func (stuckToken) Done() <-chan struct{}          { return make(chan struct{}) }

type message struct {
	topic    string
	retained bool
	payload  string
}

// fakeClient records publishes. Other mqtt.Client methods are not used.
type fakeClient struct {
	mqtt.Client
	published []message
	failTopic string
	stuck     bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var p string
	switch v := payload.(type) {
	case string:
		p = v
	case []byte:
		p = string(v)
	}
	c.published = append(c.published, message{topic: topic, retained: retained, payload: p})
	if c.stuck {
		return stuckToken{}
	}
	if topic == c.failTopic {
		return doneToken{err: errors.New("broker gone")}
	}
	return doneToken{}
}

func TestPublishResult(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherFromClient(client, "solar", zap.NewNop())

	err := p.Publish("HV2050123456", inverter.Result{
		"serial_number": registers.TextValue("HV2050123456"),
		"grid_voltage":  registers.NumberValue(230.5),
		"device_status": registers.TextValue("On-grid"),
	})
	require.NoError(t, err)

	require.Len(t, client.published, 4)
	assert.Equal(t, message{"solar/HV2050123456/device_status", false, "On-grid"}, client.published[0])
	assert.Equal(t, message{"solar/HV2050123456/grid_voltage", false, "230.5"}, client.published[1])
	assert.Equal(t, message{"solar/HV2050123456/serial_number", false, "HV2050123456"}, client.published[2])

	status := client.published[3]
	assert.Equal(t, "solar/HV2050123456/status", status.topic)
	assert.True(t, status.retained)
	assert.JSONEq(t, `{"serial_number":"HV2050123456","grid_voltage":230.5,"device_status":"On-grid"}`, status.payload)
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, "HV2050123456", DeviceID(inverter.Result{"serial_number": registers.TextValue("HV2050123456")}))
	assert.Equal(t, "inverter", DeviceID(inverter.Result{"active_power": registers.NumberValue(5012)}))
	assert.Equal(t, "inverter", DeviceID(inverter.Result{"serial_number": registers.TextValue("")}))
}

func TestPublishUsesGivenDevice(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherFromClient(client, "solar", zap.NewNop())

	require.NoError(t, p.Publish("HV1", inverter.Result{"active_power": registers.NumberValue(5012)}))
	assert.Equal(t, "solar/HV1/active_power", client.published[0].topic)
}

func TestPublishReportsFailures(t *testing.T) {
	client := &fakeClient{failTopic: "solar/inverter/active_power"}
	p := NewPublisherFromClient(client, "solar", zap.NewNop())

	err := p.Publish("inverter", inverter.Result{
		"active_power": registers.NumberValue(5012),
		"efficiency":   registers.NumberValue(98.4),
	})
	assert.Error(t, err)
	assert.Len(t, client.published, 3)
}

func TestDisabledPublisher(t *testing.T) {
	p, err := NewPublisher(PublisherConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish("x", inverter.Result{"a": registers.NumberValue(1)}))
	assert.NoError(t, p.PublishHomeAssistantDiscovery("x", "y"))
	assert.False(t, p.IsConnected())
	p.Close()
}

func TestHomeAssistantDiscovery(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisherFromClient(client, "solar", zap.NewNop())

	require.NoError(t, p.PublishHomeAssistantDiscovery("HV1", "SUN2000-5KTL-M1"))
	require.Len(t, client.published, len(registers.All()))

	var voltage map[string]interface{}
	for _, m := range client.published {
		assert.True(t, m.retained)
		if m.topic == "homeassistant/sensor/huawei_solar_HV1/grid_voltage/config" {
			require.NoError(t, json.Unmarshal([]byte(m.payload), &voltage))
		}
	}
	require.NotNil(t, voltage)
	assert.Equal(t, "V", voltage["unit_of_measurement"])
	assert.Equal(t, "voltage", voltage["device_class"])
	assert.Equal(t, "solar/HV1/grid_voltage", voltage["state_topic"])
}

func TestPublishTimesOut(t *testing.T) {
	client := &fakeClient{stuck: true}
	p := NewPublisherFromClient(client, "solar", zap.NewNop())

	err := p.Publish("HV1", inverter.Result{"active_power": registers.NumberValue(5012)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Error(t, p.PublishHomeAssistantDiscovery("HV1", "SUN2000"))
}

func TestNewPublisherUnreachableBroker(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	done := make(chan error, 1)
	go func() {
		_, err := NewPublisher(PublisherConfig{
			Enabled:  true,
			Broker:   "tcp://" + addr,
			ClientID: "test",
			Timeout:  2 * time.Second,
		}, zap.NewNop())
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("NewPublisher blocked on an unreachable broker")
	}
}
