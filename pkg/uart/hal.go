package uart

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/robotalks/rtdev.go/pkg/rtos"
)

// StreamHAL emulates UART registers over a byte stream, e.g. a host
// serial port or a websocket terminal. Run pumps the stream and raises
// the port's interrupts.
type StreamHAL struct {
	name string
	rw   io.ReadWriter

	// OnDivisor is called when the baud divisor is programmed.
	OnDivisor func(Divisor) error

	lock    sync.Mutex
	port    *Port
	lcr     uint8
	ier     uint8
	divisor Divisor
	txCh    chan txByte

	// txLock serializes raising the transmit interrupt with DiscardTHR.
	txLock sync.Mutex
	txGen  atomic.Uint32
}

// txByte is a byte in the holding register, stamped with the discard
// generation it was written in.
type txByte struct {
	b   uint8
	gen uint32
}

// NewStreamHAL creates a StreamHAL.
func NewStreamHAL(name string, rw io.ReadWriter) *StreamHAL {
	return &StreamHAL{name: name, rw: rw, txCh: make(chan txByte, 1)}
}

// Name implements rtos.Named.
func (h *StreamHAL) Name() string {
	return h.name
}

// Bind implements Binder.
func (h *StreamHAL) Bind(p *Port) {
	h.lock.Lock()
	h.port = p
	h.lock.Unlock()
}

// SetLineControl implements Registers.
func (h *StreamHAL) SetLineControl(lcr uint8) error {
	h.lock.Lock()
	h.lcr = lcr
	h.lock.Unlock()
	return nil
}

// SetDivisor implements Registers.
func (h *StreamHAL) SetDivisor(d Divisor) error {
	h.lock.Lock()
	h.divisor = d
	fn := h.OnDivisor
	h.lock.Unlock()
	if fn != nil {
		return fn(d)
	}
	return nil
}

// EnableInterrupts implements Registers.
func (h *StreamHAL) EnableInterrupts(ier uint8) error {
	h.lock.Lock()
	h.ier = ier
	h.lock.Unlock()
	return nil
}

// WriteTHR implements Registers.
func (h *StreamHAL) WriteTHR(b uint8) {
	select {
	case h.txCh <- txByte{b: b, gen: h.txGen.Load()}:
	default:
		glog.Warningf("%s: THR overwritten", h.name)
	}
}

// DiscardTHR implements TxDiscarder. A byte already on the stream
// still goes out, but no longer raises the transmit interrupt.
func (h *StreamHAL) DiscardTHR() {
	h.txLock.Lock()
	defer h.txLock.Unlock()
	h.txGen.Inc()
	select {
	case t := <-h.txCh:
		glog.V(4).Infof("%s: discarded 0x%02x", h.name, t.b)
	default:
	}
}

// Divisor returns the programmed divisor.
func (h *StreamHAL) Divisor() Divisor {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.divisor
}

func (h *StreamHAL) interrupt(mask, iir, rbr uint8) {
	h.lock.Lock()
	port, enabled := h.port, h.ier&mask != 0
	h.lock.Unlock()
	if port != nil && enabled {
		port.ServiceInterrupt(iir, rbr)
	}
}

// Run implements rtos.Runnable.
func (h *StreamHAL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.transmit(ctx)
	}()
	err := rtos.RunWithContextCancel(ctx, func() { h.Close() }, h.receive)
	cancel()
	if txErr := <-errCh; err == nil && txErr != context.Canceled {
		err = txErr
	}
	return err
}

// Close closes the stream if it can be closed.
func (h *StreamHAL) Close() error {
	if c, ok := h.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (h *StreamHAL) receive() error {
	buf := make([]byte, 64)
	for {
		n, err := h.rw.Read(buf)
		for _, b := range buf[:n] {
			h.interrupt(IERRBR, IIRRBR, b)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (h *StreamHAL) transmit(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-h.txCh:
			if _, err := h.rw.Write([]byte{t.b}); err != nil {
				return err
			}
			h.txEmpty(t.gen)
		}
	}
}

func (h *StreamHAL) txEmpty(gen uint32) {
	h.txLock.Lock()
	defer h.txLock.Unlock()
	if gen == h.txGen.Load() {
		h.interrupt(IERTHRE, IIRTHRE, 0)
	}
}
