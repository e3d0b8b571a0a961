package uart

import (
	"io"
	"sync"
)

// Terminal is a stream a remote terminal attaches to and detaches
// from while the port keeps running. Output is discarded while no
// terminal is attached and reads wait for one.
type Terminal struct {
	lock   sync.Mutex
	rw     io.ReadWriter
	doneC  chan struct{}
	waitC  chan struct{}
	closed bool
}

// NewTerminal creates a Terminal.
func NewTerminal() *Terminal {
	return &Terminal{waitC: make(chan struct{})}
}

// Attach makes rw the current terminal, detaching the previous one.
// The returned channel is closed when rw is detached.
func (t *Terminal) Attach(rw io.ReadWriter) <-chan struct{} {
	t.lock.Lock()
	defer t.lock.Unlock()
	doneC := make(chan struct{})
	if t.closed {
		close(doneC)
		return doneC
	}
	if t.rw != nil {
		close(t.doneC)
	}
	t.rw, t.doneC = rw, doneC
	close(t.waitC)
	t.waitC = make(chan struct{})
	return doneC
}

// Attached indicates a terminal is attached.
func (t *Terminal) Attached() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rw != nil
}

func (t *Terminal) detach(rw io.ReadWriter) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.rw == rw && t.rw != nil {
		t.rw = nil
		close(t.doneC)
	}
}

// Read implements io.Reader.
func (t *Terminal) Read(p []byte) (int, error) {
	for {
		t.lock.Lock()
		rw, waitC, closed := t.rw, t.waitC, t.closed
		t.lock.Unlock()
		if closed {
			return 0, io.EOF
		}
		if rw == nil {
			<-waitC
			continue
		}
		n, err := rw.Read(p)
		if err != nil {
			t.detach(rw)
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Write implements io.Writer.
func (t *Terminal) Write(p []byte) (int, error) {
	t.lock.Lock()
	rw := t.rw
	t.lock.Unlock()
	if rw != nil {
		if _, err := rw.Write(p); err != nil {
			t.detach(rw)
		}
	}
	return len(p), nil
}

// Close detaches the terminal and fails pending reads.
func (t *Terminal) Close() error {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil
	}
	t.closed = true
	close(t.waitC)
	rw := t.rw
	if rw != nil {
		t.rw = nil
		close(t.doneC)
	}
	t.lock.Unlock()
	if c, ok := rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
