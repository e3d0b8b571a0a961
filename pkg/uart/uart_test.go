package uart

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtdev.go/pkg/device"
)

type fakeRegs struct {
	lock    sync.Mutex
	lcr     uint8
	ier     uint8
	divisor Divisor
	thr     []byte
}

func (r *fakeRegs) SetLineControl(lcr uint8) error { r.lcr = lcr; return nil }
func (r *fakeRegs) SetDivisor(d Divisor) error     { r.divisor = d; return nil }
func (r *fakeRegs) EnableInterrupts(ier uint8) error {
	r.ier = ier
	return nil
}
func (r *fakeRegs) WriteTHR(b uint8) {
	r.lock.Lock()
	r.thr = append(r.thr, b)
	r.lock.Unlock()
}

func (r *fakeRegs) sent() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return string(r.thr)
}

func feed(p *Port, s string) {
	for _, b := range []byte(s) {
		p.ServiceInterrupt(IIRRBR, b)
	}
}

func TestSearchDivisor(t *testing.T) {
	for _, baud := range []uint32{9600, 19200, 38400, 57600, 115200} {
		t.Run(strconv.Itoa(int(baud)), func(t *testing.T) {
			div, err := SearchDivisor(DefaultPCLK, baud)
			require.NoError(t, err)
			require.Equal(t, baud, div.Baud)
			require.True(t, div.Latch > 2)
			require.True(t, div.MulVal >= 1 && div.MulVal <= 15)
			require.True(t, div.DivAddVal <= 15)
			// the rate must be reproducible from the register values.
			clk := uint64(div.MulVal) * DefaultPCLK / (uint64(div.MulVal) + uint64(div.DivAddVal))
			require.Equal(t, uint32(clk/uint64(div.Latch)), div.Rate)
			require.True(t, uint64(div.Error())*100 < uint64(baud)*AcceptedBaudError,
				"error %d too large for %d", div.Error(), baud)
		})
	}
}

func TestSearchDivisorFailure(t *testing.T) {
	for _, baud := range []uint32{0, 1, 2000000} {
		_, err := SearchDivisor(DefaultPCLK, baud)
		require.ErrorIs(t, err, device.ErrNegotiation)
		require.Equal(t, device.NegotiationFailed, device.ResultOf(err))
	}
}

func TestDivisorRegisters(t *testing.T) {
	d := Divisor{MulVal: 12, DivAddVal: 3, Latch: 0x1234}
	require.Equal(t, uint8(0xc3), d.FDR())
	require.Equal(t, uint8(0x12), d.DLM())
	require.Equal(t, uint8(0x34), d.DLL())
}

func TestPortReceiveLine(t *testing.T) {
	p := NewPort(0, &fakeRegs{})
	buf := make([]byte, BufferSize)
	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)

	feed(p, "hel")
	require.Equal(t, RxFilling, p.RxState())
	feed(p, "lo\r")
	require.Equal(t, RxComplete, p.RxState())
	require.Equal(t, uint64(1), p.Stats().RxLines)

	// bytes arriving before the line is drained are dropped.
	feed(p, "x")
	require.Equal(t, uint64(1), p.Stats().RxDropped)

	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(buf[:n]))
	require.Zero(t, buf[n])
	require.Equal(t, RxIdle, p.RxState())

	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, uint64(1), p.Stats().RxLines)
}

func TestPortReceiveOverrun(t *testing.T) {
	p := NewPort(0, &fakeRegs{})
	feed(p, strings.Repeat("a", BufferSize+10)+"\r")
	buf := make([]byte, BufferSize)
	_, err := p.Read(buf)
	require.ErrorIs(t, err, device.ErrBufferOverrun)
	require.Equal(t, device.Overrun, device.ResultOf(err))
	// the tail of the long line is discarded.
	n, err := p.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)

	feed(p, "ok\r")
	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(buf[:n]))

	// the longest line fitting the buffer.
	feed(p, strings.Repeat("b", BufferSize-1)+"\r")
	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, BufferSize, n)
	require.Equal(t, byte(LF), buf[n-1])
}

func TestPortTransmit(t *testing.T) {
	regs := &fakeRegs{}
	p := NewPort(0, regs)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, []byte("AB")))
	require.True(t, p.TxBusy())
	require.Equal(t, "A", regs.sent())

	started, err := p.TryWrite([]byte("C"))
	require.NoError(t, err)
	require.False(t, started)

	p.ServiceInterrupt(IIRTHRE, 0)
	require.Equal(t, "AB", regs.sent())
	require.True(t, p.TxBusy())
	p.ServiceInterrupt(IIRTHRE, 0)
	require.False(t, p.TxBusy())
	require.Equal(t, uint64(2), p.Stats().TxBytes)

	// data stops at NUL.
	require.NoError(t, p.Write(ctx, []byte{'x', 0, 'y'}))
	p.HandleTxEmpty()
	require.False(t, p.TxBusy())
	require.Equal(t, "ABx", regs.sent())
}

func TestPortWriteWaitsForLatch(t *testing.T) {
	regs := &fakeRegs{}
	p := NewPort(0, regs)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Write(ctx, []byte("A")))

	doneCh := make(chan error, 1)
	go func() { doneCh <- p.Write(ctx, []byte("B")) }()
	select {
	case <-doneCh:
		t.Fatal("write must wait for the latch")
	case <-time.After(20 * time.Millisecond):
	}
	p.HandleTxEmpty()
	require.NoError(t, <-doneCh)
	require.Equal(t, "AB", regs.sent())

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	require.Equal(t, context.DeadlineExceeded, p.Write(short, []byte("C")))
}

func TestPortsHaveIndependentLatches(t *testing.T) {
	r0, r1 := &fakeRegs{}, &fakeRegs{}
	p0, p1 := NewPort(0, r0), NewPort(1, r1)
	ctx := context.Background()
	require.NoError(t, p0.Write(ctx, []byte("long")))
	started, err := p1.TryWrite([]byte("x"))
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, "l", r0.sent())
	require.Equal(t, "x", r1.sent())
}

func newDriver(t *testing.T) (*Driver, [NumPorts]*fakeRegs) {
	d := New(device.NewGate("uart", nil), 0)
	var regs [NumPorts]*fakeRegs
	for n := range regs {
		regs[n] = &fakeRegs{}
		_, err := d.Attach(n, regs[n])
		require.NoError(t, err)
	}
	return d, regs
}

func TestDriverOwnership(t *testing.T) {
	d, regs := newDriver(t)
	ctx := context.Background()

	require.NoError(t, d.Open(ctx, 1, 0, 115200))
	require.Equal(t, uint8(LCR8N1), regs[0].lcr)
	require.Equal(t, uint8(IERRBR|IERTHRE), regs[0].ier)
	require.Equal(t, uint32(115200), regs[0].divisor.Baud)

	require.ErrorIs(t, d.Open(ctx, 2, 1, 9600), device.ErrBusy)
	require.ErrorIs(t, d.Write(ctx, 2, 0, []byte("x")), device.ErrNotOwner)
	require.Empty(t, regs[0].sent())

	port, err := d.Port(0)
	require.NoError(t, err)
	feed(port, "hi\r")
	buf := make([]byte, 16)
	_, err = d.Read(ctx, 2, 0, buf)
	require.ErrorIs(t, err, device.ErrNotOwner)
	require.Equal(t, RxComplete, port.RxState())

	n, err := d.ReadLine(ctx, 1, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(buf[:n]))

	require.NoError(t, d.Write(ctx, 1, 0, []byte("ok")))
	require.Equal(t, "o", regs[0].sent())

	require.NoError(t, d.Close(ctx, 1))
	require.False(t, port.TxBusy())

	// the next owner starts from idle cursors.
	require.NoError(t, d.Open(ctx, 2, 1, 9600))
	require.Equal(t, device.ClientID(2), d.Gate().Owner())
	require.Equal(t, RxIdle, port.RxState())
}

func TestDriverOpenBadBaud(t *testing.T) {
	d, _ := newDriver(t)
	ctx := context.Background()
	err := d.Open(ctx, 1, 0, 2000000)
	require.ErrorIs(t, err, device.ErrNegotiation)
	require.False(t, d.Gate().Reserved())
	require.NoError(t, d.Open(ctx, 2, 0, 9600))

	_, err = d.Port(7)
	require.Error(t, err)
}

func TestStreamHAL(t *testing.T) {
	host, dev := net.Pipe()
	hal := NewStreamHAL("pipe", dev)
	d := New(device.NewGate("uart", nil), 0)
	_, err := d.Attach(0, hal)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)
	doneCh := make(chan error, 1)
	go func() { doneCh <- hal.Run(runCtx) }()

	require.NoError(t, d.Open(ctx, 1, 0, 57600))
	require.Equal(t, uint32(57600), hal.Divisor().Baud)

	require.NoError(t, d.Write(ctx, 1, 0, []byte("hey")))
	got := make([]byte, 3)
	_, err = io.ReadFull(host, got)
	require.NoError(t, err)
	require.Equal(t, "hey", string(got))
	require.NoError(t, d.Flush(ctx, 1, 0))

	go host.Write([]byte("ping\r"))
	buf := make([]byte, BufferSize)
	n, err := d.ReadLine(ctx, 1, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "ping\n", string(buf[:n]))

	stop()
	<-doneCh
}

func TestTerminal(t *testing.T) {
	term := NewTerminal()
	require.False(t, term.Attached())
	n, err := term.Write([]byte("dropped"))
	require.NoError(t, err)
	require.Equal(t, 7, n)

	readCh := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := term.Read(buf)
		readCh <- string(buf[:n])
	}()

	host1, dev1 := net.Pipe()
	done1 := term.Attach(dev1)
	require.True(t, term.Attached())
	go host1.Write([]byte("abc"))
	require.Equal(t, "abc", <-readCh)

	host2, dev2 := net.Pipe()
	done2 := term.Attach(dev2)
	<-done1
	go func() {
		buf := make([]byte, 2)
		io.ReadFull(host2, buf)
		readCh <- string(buf)
	}()
	_, err = term.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "hi", <-readCh)

	require.NoError(t, term.Close())
	<-done2
	require.False(t, term.Attached())
	_, err = term.Read(make([]byte, 1))
	require.Equal(t, io.EOF, err)
	host1.Close()
	host2.Close()
}

func TestPortReadShortBuffer(t *testing.T) {
	p := NewPort(0, &fakeRegs{})
	feed(p, "hello world\r")
	buf := make([]byte, 4)
	n, err := p.Read(buf)
	require.ErrorIs(t, err, device.ErrBufferOverrun)
	require.Equal(t, "hell", string(buf[:n]))
	require.Equal(t, RxIdle, p.RxState())
	require.Equal(t, uint64(1), p.Stats().RxOverrun)

	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)

	// an exact fit is not an overrun.
	feed(p, "abc\r")
	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "abc\n", string(buf[:n]))
}

type nopStream struct{}

func (nopStream) Read(p []byte) (int, error)  { return 0, io.EOF }
func (nopStream) Write(p []byte) (int, error) { return len(p), nil }

func TestResetDiscardsHoldingRegister(t *testing.T) {
	hal := NewStreamHAL("stream", nopStream{})
	p := NewPort(0, hal)
	hal.Bind(p)
	require.NoError(t, p.Configure(Divisor{}))

	// a queued byte is dropped.
	started, err := p.TryWrite([]byte("xy"))
	require.NoError(t, err)
	require.True(t, started)
	p.Reset()
	require.Len(t, hal.txCh, 0)
	require.False(t, p.TxBusy())

	// a byte already on the stream doesn't advance the next write.
	_, err = p.TryWrite([]byte("AB"))
	require.NoError(t, err)
	stale := <-hal.txCh
	require.Equal(t, uint8('A'), stale.b)
	p.Reset()
	_, err = p.TryWrite([]byte("CD"))
	require.NoError(t, err)
	hal.txEmpty(stale.gen)
	require.Len(t, hal.txCh, 1)

	next := <-hal.txCh
	require.Equal(t, uint8('C'), next.b)
	hal.txEmpty(next.gen)
	last := <-hal.txCh
	require.Equal(t, uint8('D'), last.b)
	hal.txEmpty(last.gen)
	require.False(t, p.TxBusy())
}
