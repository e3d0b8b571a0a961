package eth

import (
	"fmt"
	"net"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// Role of a connection.
type Role uint8

// Roles
const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Conn is a connection record drawn from the connection pool.
type Conn struct {
	Owner      device.ClientID
	Num        uint8
	Role       Role
	RemoteIP   [4]byte
	RemotePort uint16
	LocalPort  uint16

	next *Conn
}

// Reset implements device.Block.
func (c *Conn) Reset() {
	*c = Conn{}
}

// Remote returns the remote address.
func (c *Conn) Remote() net.IP {
	return net.IPv4(c.RemoteIP[0], c.RemoteIP[1], c.RemoteIP[2], c.RemoteIP[3])
}

// SetRemote sets the remote address from a dotted IPv4 string.
func (c *Conn) SetRemote(addr string, port uint16) error {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	copy(c.RemoteIP[:], ip)
	c.RemotePort = port
	return nil
}

func (c *Conn) String() string {
	if c.Role == RoleClient {
		return fmt.Sprintf("%s/%d client %s:%d", c.Owner, c.Num, c.Remote(), c.RemotePort)
	}
	return fmt.Sprintf("%s/%d server :%d", c.Owner, c.Num, c.LocalPort)
}

// Registry is a singly linked list of connections keyed by owner and
// connection number.
type Registry struct {
	head *Conn
	tail *Conn
	size int
}

// Len returns the number of connections.
func (r *Registry) Len() int {
	return r.size
}

// Empty indicates no connection is registered.
func (r *Registry) Empty() bool {
	return r.head == nil
}

// Add appends c unless the same record is already in the list.
func (r *Registry) Add(c *Conn) bool {
	for n := r.head; n != nil; n = n.next {
		if n == c {
			return false
		}
	}
	c.next = nil
	if r.head == nil {
		r.head = c
	} else {
		r.tail.next = c
	}
	r.tail = c
	r.size++
	return true
}

// Find returns the first connection of owner with number num.
func (r *Registry) Find(owner device.ClientID, num uint8) *Conn {
	for n := r.head; n != nil; n = n.next {
		if n.Owner == owner && n.Num == num {
			return n
		}
	}
	return nil
}

// Remove unlinks every connection of owner with number num and returns
// them.
func (r *Registry) Remove(owner device.ClientID, num uint8) (removed []*Conn) {
	var prev *Conn
	for n := r.head; n != nil; {
		next := n.next
		if n.Owner == owner && n.Num == num {
			if prev == nil {
				r.head = next
			} else {
				prev.next = next
			}
			if r.tail == n {
				r.tail = prev
			}
			n.next = nil
			r.size--
			removed = append(removed, n)
		} else {
			prev = n
		}
		n = next
	}
	return
}

// Each iterates connections in insertion order.
func (r *Registry) Each(fn func(*Conn)) {
	for n := r.head; n != nil; n = n.next {
		fn(n)
	}
}

// Clear drops all connections.
func (r *Registry) Clear() {
	r.head, r.tail, r.size = nil, nil, 0
}
