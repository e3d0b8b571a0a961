// Package eth implements the Ethernet device class: one owning client
// with a registry of named connections over a single-socket IP stack.
package eth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// Driver defaults
const (
	PoolSize        = 10
	MaxTxDataSize   = 512
	ClientLocalPort = 2025
	TxPollInterval  = 5 * time.Millisecond
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrInvalidAddress = errors.New("invalid address")
	ErrUnknownConn    = errors.New("unknown connection")
)

// Config of the driver.
type Config struct {
	// CloseAfterWrite closes the socket after the last segment of a
	// write, like serving a web page.
	CloseAfterWrite bool
	// Sleep is used while waiting for the tx buffer.
	Sleep device.Sleeper
}

// Driver is the Ethernet device class.
type Driver struct {
	gate  *device.Gate
	stack Stack
	pool  *device.Arena
	conns Registry
	cfg   Config

	remoteIP      [4]byte
	remotePort    uint16
	localPort     uint16
	activeOpened  bool
	passiveOpened bool
}

// New creates a Driver.
func New(gate *device.Gate, stack Stack, cfg Config) *Driver {
	if cfg.Sleep == nil {
		cfg.Sleep = device.Sleep
	}
	return &Driver{
		gate:  gate,
		stack: stack,
		cfg:   cfg,
		pool:  device.NewArena(gate.Name()+".conn", PoolSize, func() device.Block { return &Conn{} }),
	}
}

// Gate returns the arbitration gate.
func (d *Driver) Gate() *device.Gate {
	return d.gate
}

// Pool returns the connection pool.
func (d *Driver) Pool() *device.Arena {
	return d.pool
}

// Open claims Ethernet for id and returns a new connection record.
// The first open brings up the stack.
func (d *Driver) Open(ctx context.Context, id device.ClientID) (conn *Conn, err error) {
	err = d.gate.Open(ctx, id, func(first bool) error {
		if first {
			d.pool.Reinit()
			d.conns.Clear()
			if err := d.stack.Init(ctx); err != nil {
				return err
			}
		}
		b, err := d.pool.Alloc()
		if err != nil {
			return err
		}
		conn = b.(*Conn)
		conn.Owner = id
		return nil
	})
	if err != nil {
		conn = nil
	}
	return
}

// Connect registers conn as connection num and drives the socket: active
// open for a client, passive open for a server.
func (d *Driver) Connect(ctx context.Context, id device.ClientID, conn *Conn, num uint8) error {
	return d.gate.Do(ctx, id, "connect", func() error {
		if conn == nil || conn.Owner != id {
			return device.ErrNotOwner
		}
		conn.Num = num
		d.conns.Add(conn)
		run := d.conns.Find(id, num)
		if run == nil {
			return ErrUnknownConn
		}
		if run.Role == RoleClient {
			return d.connectClient(run)
		}
		return d.connectServer(run)
	})
}

func (d *Driver) connectClient(c *Conn) error {
	if c.RemoteIP == [4]byte{} {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, c.Remote())
	}
	if c.RemoteIP != d.remoteIP {
		d.remoteIP = c.RemoteIP
		d.localPort = ClientLocalPort
	}
	portChanged := d.remotePort != c.RemotePort
	d.remotePort = c.RemotePort
	if d.stack.Status()&StatusActive == 0 || d.passiveOpened || portChanged {
		glog.V(2).Infof("eth: active open %s", c)
		if err := d.stack.ActiveOpen(Endpoint{RemoteIP: d.remoteIP, RemotePort: d.remotePort, LocalPort: d.localPort}); err != nil {
			return err
		}
		d.passiveOpened, d.activeOpened = false, true
	}
	return nil
}

func (d *Driver) connectServer(c *Conn) error {
	if d.localPort != c.LocalPort {
		d.localPort = c.LocalPort
	}
	if d.stack.Status()&StatusActive == 0 || d.activeOpened {
		glog.V(2).Infof("eth: passive open %s", c)
		if err := d.stack.PassiveOpen(d.localPort); err != nil {
			return err
		}
		d.activeOpened, d.passiveOpened = false, true
	}
	return nil
}

// Write sends data in segments of MaxTxDataSize. It waits, bounded by
// ctx, for the stack to release the tx buffer between segments.
func (d *Driver) Write(ctx context.Context, id device.ClientID, data []byte) error {
	for off := 0; ; {
		var sent int
		err := d.gate.Do(ctx, id, "write", func() error {
			d.stack.ReleaseRxBuffer()
			status := d.stack.Status()
			if status&StatusConnected == 0 {
				return ErrNotConnected
			}
			if status&StatusTxBufReleased == 0 {
				return nil
			}
			end := off + MaxTxDataSize
			if end > len(data) {
				end = len(data)
			}
			if err := d.stack.TransmitTxBuffer(data[off:end]); err != nil {
				return err
			}
			sent = end - off
			if end == len(data) && d.cfg.CloseAfterWrite {
				return d.stack.Close()
			}
			return nil
		})
		if err != nil {
			return err
		}
		if off += sent; off >= len(data) {
			return nil
		}
		if sent == 0 {
			if err := d.cfg.Sleep(ctx, TxPollInterval); err != nil {
				return err
			}
		}
	}
}

// Read copies received data into dest and releases the rx buffer. It
// never blocks. Data not fitting dest is dropped with ErrBufferOverrun.
func (d *Driver) Read(ctx context.Context, id device.ClientID, dest []byte) (n int, err error) {
	err = d.gate.Do(ctx, id, "read", func() error {
		data := d.stack.RxData()
		if data == nil {
			return nil
		}
		n = copy(dest, data)
		d.stack.ReleaseRxBuffer()
		if n < len(data) {
			return device.ErrBufferOverrun
		}
		return nil
	})
	return
}

// Status returns the socket status.
func (d *Driver) Status() Status {
	return d.stack.Status()
}

// Connections returns copies of the registered connections.
func (d *Driver) Connections(ctx context.Context, id device.ClientID) (conns []Conn, err error) {
	err = d.gate.Do(ctx, id, "list", func() error {
		d.conns.Each(func(c *Conn) { conns = append(conns, *c) })
		return nil
	})
	return
}

// Close removes every connection of id numbered like conn and frees
// their records. Ethernet is released when no connection remains.
func (d *Driver) Close(ctx context.Context, id device.ClientID, conn *Conn) error {
	return d.gate.Close(ctx, id, func() (bool, error) {
		if conn != nil {
			removed := d.conns.Remove(id, conn.Num)
			listed := false
			for _, c := range removed {
				listed = listed || c == conn
				d.free(c)
			}
			if !listed && conn.Owner == id {
				d.free(conn)
			}
		}
		if !d.conns.Empty() {
			return false, nil
		}
		if err := d.stack.Close(); err != nil {
			glog.Warningf("eth: close socket: %v", err)
			d.stack.Reset()
		}
		d.pool.Reinit()
		d.remoteIP, d.remotePort, d.localPort = [4]byte{}, 0, 0
		d.activeOpened, d.passiveOpened = false, false
		return true, nil
	})
}

func (d *Driver) free(c *Conn) {
	if err := d.pool.Free(c); err != nil && !errors.Is(err, device.ErrForeignBlock) {
		glog.Errorf("eth: free conn: %v", err)
	}
}
