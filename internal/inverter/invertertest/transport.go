// Package invertertest provides an in-memory inverter for tests.
package invertertest

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTimeout mimics a transport timeout.
var ErrTimeout = errors.New("request timed out")

type Request struct {
	Address  uint16
	Quantity uint16
}

// Transport answers holding register reads from a fixed map, keyed by start
// address. It satisfies inverter.Transport.
type Transport struct {
	mu         sync.Mutex
	regs       map[uint16][]uint16
	fail       map[uint16]error
	connectErr error
	connected  bool
	requests   []Request
	connects   int
	closes     int
}

func NewTransport() *Transport {
	return &Transport{
		regs: map[uint16][]uint16{},
		fail: map[uint16]error{},
	}
}

// Set answers reads at address with words.
func (t *Transport) Set(address uint16, words ...uint16) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regs[address] = words
	return t
}

// Fail makes reads at address return err.
func (t *Transport) Fail(address uint16, err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[address] = err
	return t
}

// Recover undoes Fail for address.
func (t *Transport) Recover(address uint16) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fail, address)
	return t
}

// FailConnect makes Connect return err.
func (t *Transport) FailConnect(err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErr = err
	return t
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	t.connected = false
	return nil
}

// ReadHoldingRegisters returns the stored words as is, so a word count that
// differs from quantity reaches the decoder.
func (t *Transport) ReadHoldingRegisters(address uint16, quantity uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests = append(t.requests, Request{Address: address, Quantity: quantity})
	if !t.connected {
		return nil, errors.New("not connected")
	}
	if err, ok := t.fail[address]; ok {
		return nil, err
	}
	words, ok := t.regs[address]
	if !ok {
		return nil, fmt.Errorf("illegal data address %d", address)
	}
	out := make([]uint16, len(words))
	copy(out, words)
	return out, nil
}

// Requests returns the reads issued so far, in order.
func (t *Transport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Request, len(t.requests))
	copy(out, t.requests)
	return out
}

func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Words32 encodes v as two big-endian words, high word first.
func Words32(v int32) []uint16 {
	u := uint32(v)
	return []uint16{uint16(u >> 16), uint16(u)}
}

// String encodes s into n words, NUL padded.
func String(s string, n int) []uint16 {
	b := make([]byte, 2*n)
	copy(b, s)
	words := make([]uint16, n)
	for i := range words {
		words[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return words
}

// Sample returns a transport loaded with a plausible reading for every
// catalog register.
func Sample() *Transport {
	t := NewTransport()
	t.Set(30000, String("SUN2000-5KTL-M1", 15)...)
	t.Set(30015, String("HV2050123456", 10)...)
	t.Set(32064, Words32(5230)...)
	t.Set(32066, 4012)
	t.Set(32067, 4020)
	t.Set(32068, 4005)
	t.Set(32069, 2310)
	t.Set(32070, 2322)
	t.Set(32071, 2318)
	t.Set(32072, Words32(7215)...)
	t.Set(32074, Words32(7190)...)
	t.Set(32076, Words32(-1000)...)
	t.Set(32078, Words32(5480)...)
	t.Set(32080, Words32(5012)...)
	t.Set(32082, Words32(-35)...)
	t.Set(32084, 998)
	t.Set(32085, 5001)
	t.Set(32086, 9843)
	t.Set(32087, 412)
	t.Set(32088, 3000)
	t.Set(32089, 0x0200)
	t.Set(32091, Words32(1689672736)...)
	t.Set(32093, Words32(1689631200)...)
	t.Set(32106, Words32(1234567)...)
	t.Set(32114, Words32(2345)...)
	t.Set(43006, 120)
	return t
}
