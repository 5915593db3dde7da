package modbus

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverSimonvetter = "simonvetter"
	DriverGoburrow    = "goburrow"
)

// Conn is the method set shared by Client and GoburrowClient.
type Conn interface {
	Connect() error
	ReadHoldingRegisters(address uint16, quantity uint16) ([]uint16, error)
	SlaveID() uint8
	Close() error
}

// New builds an unconnected client for the named driver.
func New(driver string, host string, port int, slaveID uint8, timeout time.Duration) (Conn, error) {
	switch strings.ToLower(driver) {
	case "", DriverSimonvetter:
		return NewClient(host, port, slaveID, timeout), nil
	case DriverGoburrow:
		return NewGoburrowClient(host, port, slaveID, timeout), nil
	default:
		return nil, fmt.Errorf("unknown modbus driver %q", driver)
	}
}
