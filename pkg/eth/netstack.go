package eth

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// NetStack defaults
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultFlushTimeout = time.Second
)

// NetStack is a single-socket Stack over host TCP. Received data goes
// through the rx descriptor ring and transmitted data through the tx
// ring, with socket goroutines standing in for the DMA engine.
type NetStack struct {
	// Controller is brought up by Init when set.
	Controller *Controller
	// Host is the local address to listen on.
	Host string
	// BindLocalPort binds active opens to the requested local port.
	BindLocalPort bool
	DialTimeout   time.Duration
	FlushTimeout  time.Duration
	// Sleep paces the tx drain after Close, device.Sleep when nil.
	Sleep device.Sleeper

	lock     sync.Mutex
	status   Status
	gen      int
	listener net.Listener
	conn     net.Conn
	doneCh   chan struct{}
	rx, tx   *Ring
	rxFrag   *Fragment
	rxSpaceC chan struct{}
	txKickC  chan struct{}
}

// NewNetStack creates a NetStack using the rings of ctrl, or its own
// rings when ctrl is nil.
func NewNetStack(ctrl *Controller) *NetStack {
	s := &NetStack{
		Controller:   ctrl,
		DialTimeout:  DefaultDialTimeout,
		FlushTimeout: DefaultFlushTimeout,
		rxSpaceC:     make(chan struct{}, 1),
		txKickC:      make(chan struct{}, 1),
	}
	if ctrl != nil {
		s.rx, s.tx = ctrl.Rx, ctrl.Tx
	} else {
		s.rx, s.tx = NewRing(NumRxFrags, FragSize), NewRing(NumTxFrags, FragSize)
	}
	return s
}

// Init implements Stack.
func (s *NetStack) Init(ctx context.Context) error {
	if s.Controller != nil {
		if _, err := s.Controller.BringUp(ctx); err != nil {
			return err
		}
	}
	s.Reset()
	return nil
}

// Status implements Stack.
func (s *NetStack) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status
}

// ActiveOpen implements Stack.
func (s *NetStack) ActiveOpen(ep Endpoint) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.teardownLocked()
	s.status = StatusActive
	gen := s.gen
	dialer := &net.Dialer{Timeout: s.DialTimeout}
	if s.BindLocalPort && ep.LocalPort != 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: int(ep.LocalPort)}
	}
	addr := net.JoinHostPort(net.IP(ep.RemoteIP[:]).String(), strconv.Itoa(int(ep.RemotePort)))
	go func() {
		conn, err := dialer.Dial("tcp", addr)
		s.lock.Lock()
		defer s.lock.Unlock()
		if gen != s.gen {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			glog.Warningf("eth: connect %s: %v", addr, err)
			s.status = 0
			return
		}
		s.attachLocked(conn)
	}()
	return nil
}

// PassiveOpen implements Stack.
func (s *NetStack) PassiveOpen(localPort uint16) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.teardownLocked()
	ln, err := net.Listen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(int(localPort))))
	if err != nil {
		return err
	}
	s.listener, s.status = ln, StatusActive
	gen := s.gen
	go func() {
		conn, err := ln.Accept()
		s.lock.Lock()
		defer s.lock.Unlock()
		if gen != s.gen {
			if conn != nil {
				conn.Close()
			}
			return
		}
		ln.Close()
		s.listener = nil
		if err != nil {
			glog.Warningf("eth: accept: %v", err)
			s.status = 0
			return
		}
		s.attachLocked(conn)
	}()
	return nil
}

// Addr returns the listening address, nil when not listening.
func (s *NetStack) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *NetStack) attachLocked(conn net.Conn) {
	glog.V(2).Infof("eth: connected %s <-> %s", conn.LocalAddr(), conn.RemoteAddr())
	s.conn = conn
	s.doneCh = make(chan struct{})
	s.status |= StatusConnected | StatusTxBufReleased
	go s.receive(s.gen, conn, s.doneCh)
	go s.transmit(s.gen, conn, s.doneCh)
}

func (s *NetStack) teardownLocked() {
	s.gen++
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.doneCh != nil {
		close(s.doneCh)
		s.doneCh = nil
	}
	s.status = 0
	s.rxFrag = nil
	s.rx.Reset()
	s.tx.Reset()
}

func (s *NetStack) disconnected(gen int, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if gen != s.gen {
		return
	}
	glog.V(2).Infof("eth: disconnected: %v", err)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.status = 0
}

// receive is the rx DMA: it fills the rx ring from the socket.
func (s *NetStack) receive(gen int, conn net.Conn, doneCh chan struct{}) {
	buf := make([]byte, FragSize)
	for {
		n, err := conn.Read(buf)
		for n > 0 {
			s.lock.Lock()
			if gen != s.gen {
				s.lock.Unlock()
				return
			}
			perr := s.rx.Produce(buf[:n], 0)
			s.lock.Unlock()
			if perr != ErrRingFull {
				break
			}
			select {
			case <-doneCh:
				return
			case <-s.rxSpaceC:
			}
		}
		if err != nil {
			s.disconnected(gen, err)
			return
		}
	}
}

// transmit is the tx DMA: it drains the tx ring to the socket.
func (s *NetStack) transmit(gen int, conn net.Conn, doneCh chan struct{}) {
	var frame []byte
	for {
		select {
		case <-doneCh:
			return
		case <-s.txKickC:
		}
		for {
			s.lock.Lock()
			if gen != s.gen {
				s.lock.Unlock()
				return
			}
			frag, ok := s.tx.Peek()
			if !ok {
				s.status |= StatusTxBufReleased
				s.lock.Unlock()
				break
			}
			frame = append(frame[:0], frag.Buf[:frag.Len]...)
			s.lock.Unlock()

			_, err := conn.Write(frame)

			s.lock.Lock()
			if gen == s.gen {
				s.tx.Release()
			}
			s.lock.Unlock()
			if err != nil {
				s.disconnected(gen, err)
				return
			}
		}
	}
}

// TransmitTxBuffer implements Stack.
func (s *NetStack) TransmitTxBuffer(data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status&StatusConnected == 0 {
		return ErrNotConnected
	}
	if err := s.tx.Produce(data, 0); err != nil {
		return err
	}
	s.status &^= StatusTxBufReleased
	select {
	case s.txKickC <- struct{}{}:
	default:
	}
	return nil
}

// RxData implements Stack.
func (s *NetStack) RxData() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.rxFrag == nil {
		frag, ok := s.rx.Peek()
		if !ok {
			return nil
		}
		s.rxFrag = frag
	}
	return s.rxFrag.Buf[:s.rxFrag.Len]
}

// ReleaseRxBuffer implements Stack.
func (s *NetStack) ReleaseRxBuffer() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.rxFrag == nil {
		return
	}
	s.rxFrag = nil
	s.rx.Release()
	select {
	case s.rxSpaceC <- struct{}{}:
	default:
	}
}

// Close implements Stack. The socket stops taking data at once while
// pending tx data drains in the background, bounded by FlushTimeout.
// A new open or Reset before the drain ends drops what is left.
func (s *NetStack) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil || s.tx.Pending() == 0 {
		s.teardownLocked()
		return nil
	}
	s.status = 0
	go s.drain(s.gen)
	return nil
}

func (s *NetStack) drain(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.FlushTimeout)
	defer cancel()
	sleep := s.Sleep
	if sleep == nil {
		sleep = device.Sleep
	}
	for {
		s.lock.Lock()
		if gen != s.gen {
			s.lock.Unlock()
			return
		}
		pending := s.tx.Pending()
		if pending == 0 || ctx.Err() != nil {
			if pending > 0 {
				glog.Warningf("eth: close with %d tx fragments pending", pending)
			}
			s.teardownLocked()
			s.lock.Unlock()
			return
		}
		s.lock.Unlock()
		sleep(ctx, time.Millisecond)
	}
}

// Reset implements Stack.
func (s *NetStack) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.teardownLocked()
}
