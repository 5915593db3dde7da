package main

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
		ok   bool
	}{
		{"192.168.1.10", "192.168.1.10", 502, true},
		{"192.168.1.10:6607", "192.168.1.10", 6607, true},
		{"inverter.local:502", "inverter.local", 502, true},
		{"192.168.1.10:", "", 0, false},
		{"192.168.1.10:abc", "", 0, false},
		{"192.168.1.10:70000", "", 0, false},
		{"192.168.1.10:0", "", 0, false},
		{":502", "", 0, false},
		{"[::1]:502", "::1", 502, true},
		{"[fe80::1]:6607", "fe80::1", 6607, true},
		{"[::1]", "::1", 502, true},
		{"::1", "::1", 502, true},
		{"[::1]:", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := parseHostPort(tt.in, 502)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestChooseFormatFallsBackToJSON(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	assert.Equal(t, "json", string(chooseFormat(true, "xml", logger)))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	assert.Equal(t, "pretty_print", string(chooseFormat(true, "pretty_print", logger)))
	assert.Equal(t, "json", string(chooseFormat(false, "json", logger)))
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestRegistersCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"registers"})

	require.NoError(t, cmd.Execute())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 29)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, out.String(), "grid_voltage")
	assert.Contains(t, out.String(), "time_zone")
}

func TestQueryCommandArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"query", "127.0.0.1", "all"})
	assert.Error(t, cmd.Execute())
}

type holdingHandler struct {
	holding map[uint16]uint16
}

func (h *holdingHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *holdingHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *holdingHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *holdingHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}
	res := make([]uint16, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		v, ok := h.holding[req.Addr+i]
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		res = append(res, v)
	}
	return res, nil
}

func startInverter(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://127.0.0.1:%d", port),
		Timeout:    5 * time.Second,
		MaxClients: 2,
	}, &holdingHandler{holding: map[uint16]uint16{
		32066: 4012,
		32086: 9843,
	}})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { server.Stop() })
	return port
}

func TestQueryCommandWritesFile(t *testing.T) {
	t.Setenv("HUAWEI_SOLAR_LOG_LEVEL", "error")
	port := startInverter(t)
	dest := filepath.Join(t.TempDir(), "out.txt")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"query", fmt.Sprintf("127.0.0.1:%d", port), "grid_voltage, efficiency,bogus", dest,
		"--output_format", "pretty_print",
	})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "---Inverter status---\nEfficiency: 98.43 %\nGrid voltage: 401.2 V\n", string(data))
}

func TestQueryCommandStdout(t *testing.T) {
	t.Setenv("HUAWEI_SOLAR_INVERTER_SETTLE_DELAY", "-1s")
	t.Setenv("HUAWEI_SOLAR_LOG_LEVEL", "error")
	port := startInverter(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"query", fmt.Sprintf("127.0.0.1:%d", port), "grid_voltage,serial_number", "-", "--slave_id", "1"})
	start := time.Now()
	require.NoError(t, cmd.Execute())

	assert.GreaterOrEqual(t, time.Since(start), time.Second, "settle delay must not be configurable away")
	assert.Equal(t, "{\"grid_voltage\":401.2}\n", out.String())
}

func TestQueryCommandUnreachableBroker(t *testing.T) {
	t.Setenv("HUAWEI_SOLAR_LOG_LEVEL", "error")
	port := startInverter(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	broker := l.Addr().String()
	require.NoError(t, l.Close())
	t.Setenv("HUAWEI_SOLAR_MQTT_ENABLED", "true")
	t.Setenv("HUAWEI_SOLAR_MQTT_BROKER", "tcp://"+broker)
	t.Setenv("HUAWEI_SOLAR_MQTT_TIMEOUT", "2s")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"query", fmt.Sprintf("127.0.0.1:%d", port), "grid_voltage", "-", "--mqtt"})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("query --mqtt did not return with an unreachable broker")
	}
	assert.Equal(t, "{\"grid_voltage\":401.2}\n", out.String())
}

func TestQueryCommandUnreachable(t *testing.T) {
	t.Setenv("HUAWEI_SOLAR_INVERTER_TIMEOUT", "1s")
	t.Setenv("HUAWEI_SOLAR_LOG_LEVEL", "error")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"query", fmt.Sprintf("127.0.0.1:%d", port), "all", "-"})
	assert.Error(t, cmd.Execute())
}
