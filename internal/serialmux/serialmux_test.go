package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/presence.report/internal/rd03"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	assert.NotEqual(t, id1, id2)
	assert.NotNil(t, ch1)
	assert.NotNil(t, ch2)

	mux.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open, "unsubscribed channel must be closed")

	// Unsubscribing an unknown ID is a no-op.
	mux.Unsubscribe("not-a-real-id")
}

func TestMonitorFansOutChunks(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	payload := []byte{0xAA, 0xFF, 0x01, 0x00, 0x42}
	port.AddReadData(payload)

	select {
	case chunk := <-ch:
		assert.Equal(t, payload, chunk)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chunk")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not exit on cancel")
	}
}

func TestSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	cmd := []byte{0x01, 0x02, 0x03}
	require.NoError(t, mux.SendCommand(cmd))
	assert.Equal(t, cmd, port.GetWrittenData())
}

func TestSendCommandShortWrite(t *testing.T) {
	port := NewTestableSerialPort()
	port.ShortWrite = true
	mux := NewSerialMux(port)

	err := mux.SendCommand([]byte{0x01, 0x02, 0x03, 0x04})
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestInitializeWritesModeCommand(t *testing.T) {
	t.Run("multi target", func(t *testing.T) {
		port := NewTestableSerialPort()
		mux := NewSerialMux(port)
		require.NoError(t, mux.Initialize(true))
		assert.Equal(t, rd03.CmdMultiTarget, port.GetWrittenData())
	})

	t.Run("single target", func(t *testing.T) {
		port := NewTestableSerialPort()
		mux := NewSerialMux(port)
		require.NoError(t, mux.Initialize(false))
		assert.Equal(t, rd03.CmdSingleTarget, port.GetWrittenData())
	})
}

func TestCloseClosesSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()
	require.NoError(t, mux.Close())

	_, open := <-ch
	assert.False(t, open)
	assert.True(t, port.Closed)
}

func TestPortOptionsNormalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := PortOptions{}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 256000, opts.BaudRate)
		assert.Equal(t, 8, opts.DataBits)
		assert.Equal(t, 1, opts.StopBits)
		assert.Equal(t, "N", opts.Parity)
	})

	t.Run("parity aliases", func(t *testing.T) {
		opts, err := PortOptions{Parity: "even"}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "E", opts.Parity)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		_, err := PortOptions{DataBits: 3}.Normalize()
		assert.Error(t, err)
		_, err = PortOptions{StopBits: 5}.Normalize()
		assert.Error(t, err)
		_, err = PortOptions{Parity: "X"}.Normalize()
		assert.Error(t, err)
	})
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 256000, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	mode, err = PortOptions{StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
}
