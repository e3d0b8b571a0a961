package eth

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// Descriptor ring defaults.
const (
	NumRxFrags = 4
	NumTxFrags = 3
	FragSize   = 1536
)

// ErrRingFull indicates the producer caught up with the consumer.
var ErrRingFull = errors.New("descriptor ring full")

// Fragment is a ring slot.
type Fragment struct {
	Buf  []byte
	Len  int
	Ctrl uint32
}

// Ring is a single-producer single-consumer descriptor ring. One slot is
// always kept empty to tell full from empty.
type Ring struct {
	frags   []Fragment
	produce atomic.Uint32
	consume atomic.Uint32
}

// NewRing creates a Ring of n fragments with size bytes each.
func NewRing(n, size int) *Ring {
	if n < 2 {
		n = 2
	}
	r := &Ring{frags: make([]Fragment, n)}
	for i := range r.frags {
		r.frags[i].Buf = make([]byte, size)
	}
	return r
}

// Cap returns how many fragments can be pending.
func (r *Ring) Cap() int {
	return len(r.frags) - 1
}

func (r *Ring) next(i uint32) uint32 {
	if i++; int(i) == len(r.frags) {
		return 0
	}
	return i
}

// Pending returns the number of fragments ready for the consumer.
func (r *Ring) Pending() int {
	p, c := r.produce.Load(), r.consume.Load()
	if p >= c {
		return int(p - c)
	}
	return len(r.frags) - int(c-p)
}

// Full indicates the producer can't add more.
func (r *Ring) Full() bool {
	return r.next(r.produce.Load()) == r.consume.Load()
}

// Produce copies data into the next fragment and hands it over.
func (r *Ring) Produce(data []byte, ctrl uint32) error {
	p := r.produce.Load()
	next := r.next(p)
	if next == r.consume.Load() {
		return ErrRingFull
	}
	frag := &r.frags[p]
	if len(data) > len(frag.Buf) {
		return fmt.Errorf("frame of %d bytes: %w", len(data), device.ErrBufferOverrun)
	}
	frag.Len = copy(frag.Buf, data)
	frag.Ctrl = ctrl
	r.produce.Store(next)
	return nil
}

// Peek returns the fragment at the consume index without releasing it.
func (r *Ring) Peek() (*Fragment, bool) {
	c := r.consume.Load()
	if c == r.produce.Load() {
		return nil, false
	}
	return &r.frags[c], true
}

// Release advances the consume index past the peeked fragment.
func (r *Ring) Release() {
	c := r.consume.Load()
	if c == r.produce.Load() {
		return
	}
	r.consume.Store(r.next(c))
}

// Reset empties the ring. Both sides must be quiescent.
func (r *Ring) Reset() {
	for i := range r.frags {
		r.frags[i].Len, r.frags[i].Ctrl = 0, 0
	}
	r.produce.Store(0)
	r.consume.Store(0)
}
