package modbus

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// GoburrowClient is the goburrow/modbus flavour of Client, for gateways that
// misbehave with the default transport.
type GoburrowClient struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
	mu      sync.Mutex
	address string
	slaveID uint8
	timeout time.Duration
}

func NewGoburrowClient(host string, port int, slaveID uint8, timeout time.Duration) *GoburrowClient {
	return &GoburrowClient{
		address: net.JoinHostPort(host, strconv.Itoa(port)),
		slaveID: slaveID,
		timeout: timeout,
	}
}

func (c *GoburrowClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	handler := modbus.NewTCPClientHandler(c.address)
	handler.Timeout = c.timeout
	handler.SlaveId = c.slaveID
	if err := handler.Connect(); err != nil {
		return fmt.Errorf("failed to connect to inverter: %w", err)
	}

	c.handler = handler
	c.client = modbus.NewClient(handler)
	return nil
}

func (c *GoburrowClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		return nil
	}

	err := c.handler.Close()
	c.handler = nil
	c.client = nil
	return err
}

func (c *GoburrowClient) SlaveID() uint8 {
	return c.slaveID
}

func (c *GoburrowClient) ReadHoldingRegisters(address uint16, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	raw, err := c.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to read holding registers at %d: %w", address, err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd response length %d at %d", len(raw), address)
	}

	regs := make([]uint16, len(raw)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return regs, nil
}
