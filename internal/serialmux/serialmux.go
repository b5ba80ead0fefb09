// Package serialmux provides an abstraction over a serial port with the
// ability for multiple clients to subscribe to the raw byte stream from a
// single radar device and to send commands to it.
//
// The RD-03D speaks a binary framed protocol, so unlike a line-oriented
// sensor the mux forwards raw chunks: subscribers receive whatever bytes the
// port delivered and run their own framing downstream.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/banshee-data/presence.report/internal/rd03"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// readChunkSize is the per-read buffer size. A few frames' worth keeps
// syscall overhead low without adding meaningful latency at 256000 baud.
const readChunkSize = 256

// subscriberBuffer is the channel depth per subscriber; a slow consumer
// drops chunks rather than blocking the monitor loop.
const subscriberBuffer = 16

// SerialMux is a generic serial port multiplexer that allows multiple
// clients to subscribe to byte chunks from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel receiving byte chunks read from the
	// serial port. The returned ID identifies the channel when
	// unsubscribing.
	Subscribe() (string, chan []byte)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command bytes to the serial port.
	SendCommand([]byte) error
	// Initialize performs the one-shot mode-selection handshake with the
	// sensor.
	Initialize(multiTarget bool) error
	// Monitor reads from the serial port and fans chunks out to
	// subscribers until the context is cancelled or the port fails.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the serial port.
	Close() error
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan []byte),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize writes the fixed mode-selection command so the sensor emits the
// requested frame type. This is a startup handshake, not part of the
// steady-state stream.
func (s *SerialMux[T]) Initialize(multiTarget bool) error {
	if err := s.SendCommand(rd03.ModeCommand(multiTarget)); err != nil {
		return fmt.Errorf("failed to select sensor mode: %w", err)
	}
	return nil
}

// SendCommand sends raw command bytes to the serial port.
func (s *SerialMux[T]) SendCommand(command []byte) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write(command)
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads chunks from the serial port and fans them out to
// subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// Read in a goroutine so the blocking port.Read cannot interfere with
	// the outer loop awaiting chunks and context cancellation.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, readChunkSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case readErrChan <- err:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case chunk, ok := <-chunkChan:
			if !ok {
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- chunk:
				default:
					// a full/blocked subscriber loses the chunk rather
					// than stalling the monitor loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
