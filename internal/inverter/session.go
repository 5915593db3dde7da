package inverter

import (
	"errors"
	"fmt"
	"time"

	"huawei-solar/internal/modbus"
	"huawei-solar/internal/registers"
)

// DefaultSettleDelay is how long the inverter needs after the Modbus/TCP
// handshake before it answers requests.
const DefaultSettleDelay = time.Second

var (
	ErrTransport       = errors.New("transport error")
	ErrUnknownQuantity = errors.New("unknown quantity")
	ErrSessionClosed   = errors.New("session closed")
)

// Transport is the blocking Modbus primitive a Session is built on.
type Transport interface {
	Connect() error
	ReadHoldingRegisters(address uint16, quantity uint16) ([]uint16, error)
	Close() error
}

// sleep is swapped in tests to observe the settling delay.
var sleep = time.Sleep

// Session is a connected transport bound to one unit id. It is not safe for
// concurrent use.
type Session struct {
	transport Transport
	slaveID   uint8
	closed    bool
}

type DialConfig struct {
	Driver      string
	Host        string
	Port        int
	SlaveID     uint8
	Timeout     time.Duration
	SettleDelay time.Duration
}

// Dial connects to the inverter at cfg.Host:cfg.Port with the configured
// driver. The inverter always gets at least DefaultSettleDelay after connect.
func Dial(cfg DialConfig) (*Session, error) {
	conn, err := modbus.New(cfg.Driver, cfg.Host, cfg.Port, cfg.SlaveID, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return Open(conn, cfg.SlaveID, cfg.settleDelay())
}

func (cfg DialConfig) settleDelay() time.Duration {
	if cfg.SettleDelay < DefaultSettleDelay {
		return DefaultSettleDelay
	}
	return cfg.SettleDelay
}

// Open connects t and waits settle before returning. A zero settle means
// DefaultSettleDelay; pass a negative value to skip the wait.
func Open(t Transport, slaveID uint8, settle time.Duration) (*Session, error) {
	if err := t.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if settle == 0 {
		settle = DefaultSettleDelay
	}
	if settle > 0 {
		sleep(settle)
	}

	return &Session{transport: t, slaveID: slaveID}, nil
}

func (s *Session) SlaveID() uint8 {
	return s.slaveID
}

// Read fetches the words of r and decodes them.
func (s *Session) Read(r registers.Register) (registers.Value, error) {
	if s.closed {
		return registers.Value{}, ErrSessionClosed
	}

	words, err := s.transport.ReadHoldingRegisters(r.Address, r.Words)
	if err != nil {
		return registers.Value{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return registers.Decode(r, words)
}

func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}
