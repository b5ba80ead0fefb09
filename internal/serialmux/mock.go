package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for dev mode: reads replay a
// fixture stream, writes are discarded.
type MockSerialPort struct {
	io.Reader
}

func (m *MockSerialPort) Write(p []byte) (int, error) { return len(p), nil }
func (m *MockSerialPort) Close() error                { return nil }

// NewMockSerialMux creates a SerialMux instance backed by a mock serial port
// that replays the given frame bytes at roughly sensor rate.
func NewMockSerialMux(frame []byte) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	mockPort := &MockSerialPort{Reader: r}

	// generate data periodically to simulate serial port input
	go func() {
		defer w.Close()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(mockPort)
}

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing: scripted reads, captured writes, injectable errors.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls.
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port.
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set.
	ReadError error

	// WriteError is returned by the next Write call if set.
	WriteError error

	// ShortWrite truncates the next Write to half its length.
	ShortWrite bool

	// Closed indicates whether Close was called.
	Closed bool

	// BlockReads causes Read to block until data arrives or Close is
	// called.
	BlockReads bool

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.BlockReads && t.ReadBuffer.Len() == 0 {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, errors.New("serial port closed")
		}
	}

	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite {
		t.ShortWrite = false
		n := len(p) / 2
		t.WriteBuffer.Write(p[:n])
		return n, nil
	}

	return t.WriteBuffer.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.WriteBuffer.Bytes()
}
