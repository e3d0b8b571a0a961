package uart

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// BufferSize is the size of the receive line buffer.
const BufferSize = 512

// Line terminators
const (
	CR = 13
	LF = 10
)

// Line control and interrupt bits
const (
	LCR8N1    = 0x03
	IERRBR    = 0x01
	IERTHRE   = 0x02
	IIRMask   = 0x0e
	IIRTHRE   = 0x02
	IIRRBR    = 0x04
	IIRRxTout = 0x0c
)

// ErrTxBusy indicates a transmission is still in flight on the port.
var ErrTxBusy = errors.New("transmit in progress")

// Registers is the register surface of one UART.
// WriteTHR must not call back into the port synchronously: the transmit
// interrupt is raised once the byte has left the holding register.
type Registers interface {
	SetLineControl(lcr uint8) error
	SetDivisor(d Divisor) error
	EnableInterrupts(ier uint8) error
	WriteTHR(b uint8)
}

// TxDiscarder is implemented by registers buffering written bytes, so a
// reset can drop a byte still waiting to go out. DiscardTHR returns once
// no byte is in flight.
type TxDiscarder interface {
	DiscardTHR()
}

// RxState is the state of the receive direction.
type RxState int32

// Receive states
const (
	RxIdle RxState = iota
	RxFilling
	RxComplete
)

func (s RxState) String() string {
	switch s {
	case RxIdle:
		return "idle"
	case RxFilling:
		return "filling"
	case RxComplete:
		return "complete"
	}
	return "unknown"
}

// Stats are counters of a port.
type Stats struct {
	RxLines   uint64
	RxDropped uint64
	RxOverrun uint64
	TxBytes   uint64
}

type counters struct {
	rxLines   atomic.Uint64
	rxDropped atomic.Uint64
	rxOverrun atomic.Uint64
	txBytes   atomic.Uint64
}

// Port is the transfer context of a single UART.
// The interrupt handlers own the rx cursor and the tx cursor.
// The foreground only touches the published line after observing
// RxComplete, and hands it back by moving the state to RxIdle.
type Port struct {
	Index int
	regs  Registers

	// isrLock masks the interrupt handlers while the foreground seeds
	// a transmission or resets the port.
	isrLock sync.Mutex

	rxBuf    [BufferSize]byte
	rxPos    int
	skipping bool
	line     [BufferSize]byte
	lineLen  int
	rxState  atomic.Int32
	overrun  atomic.Bool
	rxReadyC chan struct{}

	txBuf    []byte
	txPos    int
	txBusy   atomic.Bool
	txLock   sync.Mutex
	txIdleCh chan struct{}

	stats counters
}

// NewPort creates a Port on the registers.
func NewPort(index int, regs Registers) *Port {
	return &Port{
		Index:    index,
		regs:     regs,
		rxReadyC: make(chan struct{}, 1),
	}
}

// Registers returns the registers of the port.
func (p *Port) Registers() Registers {
	return p.regs
}

// Configure sets 8N1, the baud divisor and enables RBR and THRE
// interrupts.
func (p *Port) Configure(div Divisor) error {
	if err := p.regs.SetLineControl(LCR8N1); err != nil {
		return err
	}
	if err := p.regs.SetDivisor(div); err != nil {
		return err
	}
	return p.regs.EnableInterrupts(IERRBR | IERTHRE)
}

// RxState returns the current receive state.
func (p *Port) RxState() RxState {
	return RxState(p.rxState.Load())
}

// TxBusy indicates a transmission is in flight.
func (p *Port) TxBusy() bool {
	return p.txBusy.Load()
}

// Stats returns a snapshot of the counters.
func (p *Port) Stats() Stats {
	return Stats{
		RxLines:   p.stats.rxLines.Load(),
		RxDropped: p.stats.rxDropped.Load(),
		RxOverrun: p.stats.rxOverrun.Load(),
		TxBytes:   p.stats.txBytes.Load(),
	}
}

// ServiceInterrupt dispatches an interrupt by its identification code.
// rbr is the received byte for receive interrupts.
func (p *Port) ServiceInterrupt(iir uint8, rbr uint8) {
	switch iir & IIRMask {
	case IIRRBR, IIRRxTout:
		p.HandleRx(rbr)
	case IIRTHRE:
		p.HandleTxEmpty()
	default:
		glog.V(4).Infof("uart%d: spurious interrupt 0x%02x", p.Index, iir)
	}
}

// HandleRx is the receive interrupt handler.
func (p *Port) HandleRx(b uint8) {
	p.isrLock.Lock()
	defer p.isrLock.Unlock()

	if p.RxState() == RxComplete {
		p.stats.rxDropped.Inc()
		return
	}
	if p.skipping {
		if b == CR {
			p.skipping = false
		}
		return
	}
	if b == CR {
		p.rxBuf[p.rxPos] = LF
		p.lineLen = copy(p.line[:], p.rxBuf[:p.rxPos+1])
		p.rxPos = 0
		p.rxState.Store(int32(RxComplete))
		p.stats.rxLines.Inc()
		select {
		case p.rxReadyC <- struct{}{}:
		default:
		}
		return
	}
	// the last byte of the buffer is reserved for LF.
	if p.rxPos >= BufferSize-1 {
		p.rxPos = 0
		p.skipping = true
		p.overrun.Store(true)
		p.rxState.Store(int32(RxIdle))
		p.stats.rxOverrun.Inc()
		select {
		case p.rxReadyC <- struct{}{}:
		default:
		}
		return
	}
	p.rxBuf[p.rxPos] = b
	p.rxPos++
	p.rxState.CompareAndSwap(int32(RxIdle), int32(RxFilling))
}

// HandleTxEmpty is the transmit holding register empty handler.
func (p *Port) HandleTxEmpty() {
	p.isrLock.Lock()
	defer p.isrLock.Unlock()

	if !p.txBusy.Load() {
		return
	}
	if p.txPos < len(p.txBuf) {
		b := p.txBuf[p.txPos]
		p.txPos++
		p.stats.txBytes.Inc()
		p.regs.WriteTHR(b)
		return
	}
	p.txBuf, p.txPos = p.txBuf[:0], 0
	p.releaseTx()
}

func (p *Port) releaseTx() {
	p.txLock.Lock()
	p.txBusy.Store(false)
	ch := p.txIdleCh
	p.txIdleCh = nil
	p.txLock.Unlock()
	if ch != nil {
		close(ch)
	}
}

// TryWrite starts transmitting data up to the first NUL byte.
// It returns false without side effects if a transmission is in flight.
func (p *Port) TryWrite(data []byte) (bool, error) {
	for n, b := range data {
		if b == 0 {
			data = data[:n]
			break
		}
	}
	if len(data) == 0 {
		return true, nil
	}
	if !p.txBusy.CompareAndSwap(false, true) {
		return false, nil
	}
	p.isrLock.Lock()
	p.txBuf = append(p.txBuf[:0], data...)
	p.txPos = 1
	p.stats.txBytes.Inc()
	p.regs.WriteTHR(p.txBuf[0])
	p.isrLock.Unlock()
	glog.V(4).Infof("uart%d: tx %d bytes", p.Index, len(data))
	return true, nil
}

// Write waits for the transmitter and starts transmitting data.
// It returns once the first byte is in the holding register.
func (p *Port) Write(ctx context.Context, data []byte) error {
	for {
		started, err := p.TryWrite(data)
		if err != nil || started {
			return err
		}
		if err := p.WaitTxIdle(ctx); err != nil {
			return err
		}
	}
}

// WaitTxIdle waits until the in-flight transmission drains.
func (p *Port) WaitTxIdle(ctx context.Context) error {
	for {
		p.txLock.Lock()
		if !p.txBusy.Load() {
			p.txLock.Unlock()
			return nil
		}
		if p.txIdleCh == nil {
			p.txIdleCh = make(chan struct{})
		}
		ch := p.txIdleCh
		p.txLock.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Read copies out a completed line, including the trailing LF.
// It never blocks: (0, nil) means no line is complete.
// A line longer than dest is consumed anyway: the head that fits is
// returned with ErrBufferOverrun and the rest is lost.
func (p *Port) Read(dest []byte) (int, error) {
	if p.overrun.CompareAndSwap(true, false) {
		return 0, device.ErrBufferOverrun
	}
	if p.RxState() != RxComplete {
		return 0, nil
	}
	n := copy(dest, p.line[:p.lineLen])
	if n < len(dest) {
		dest[n] = 0
	}
	lost := p.lineLen - n
	p.rxState.Store(int32(RxIdle))
	if lost > 0 {
		p.stats.rxOverrun.Inc()
		glog.Warningf("uart%d: %d bytes of the line lost", p.Index, lost)
		return n, device.ErrBufferOverrun
	}
	return n, nil
}

// WaitRx waits until a line completes or an overrun happens.
func (p *Port) WaitRx(ctx context.Context) error {
	if p.RxState() == RxComplete || p.overrun.Load() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.rxReadyC:
		return nil
	}
}

// ReadLine blocks until a line is read.
func (p *Port) ReadLine(ctx context.Context, dest []byte) (int, error) {
	for {
		n, err := p.Read(dest)
		if err != nil || n > 0 {
			return n, err
		}
		if err := p.WaitRx(ctx); err != nil {
			return 0, err
		}
	}
}

// Reset puts both directions back to idle, dropping pending data.
func (p *Port) Reset() {
	if d, ok := p.regs.(TxDiscarder); ok {
		d.DiscardTHR()
	}
	p.isrLock.Lock()
	p.rxPos, p.skipping, p.lineLen = 0, false, 0
	p.rxState.Store(int32(RxIdle))
	p.overrun.Store(false)
	select {
	case <-p.rxReadyC:
	default:
	}
	p.txBuf, p.txPos = p.txBuf[:0], 0
	p.isrLock.Unlock()
	p.releaseTx()
}
