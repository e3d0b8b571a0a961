// Package file implements the file store device class over a removable
// volume. Unmounting and removing don't release ownership, only FreeMem
// does.
package file

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// Driver defaults
const (
	MaxReadSize      = 512
	CardPollInterval = 100 * time.Millisecond
)

// WriteOp selects the action of Driver.Write.
type WriteOp uint8

// Write ops
const (
	NewFile WriteOp = iota
	Mkdir
	OpenFile
)

func (o WriteOp) String() string {
	switch o {
	case NewFile:
		return "new-file"
	case Mkdir:
		return "mkdir"
	case OpenFile:
		return "open-file"
	}
	return fmt.Sprintf("write-op(%d)", uint8(o))
}

// ReadOp selects the action of Driver.Read.
type ReadOp uint8

// Read ops
const (
	ReadFile ReadOp = iota
	ShowSize
	ShowFiles
)

func (o ReadOp) String() string {
	switch o {
	case ReadFile:
		return "read-file"
	case ShowSize:
		return "show-size"
	case ShowFiles:
		return "show-files"
	}
	return fmt.Sprintf("read-op(%d)", uint8(o))
}

// CloseOp selects the action of Driver.Close.
type CloseOp uint8

// Close ops
const (
	Remove CloseOp = iota
	Unmount
	FreeMem
)

func (o CloseOp) String() string {
	switch o {
	case Remove:
		return "remove"
	case Unmount:
		return "unmount"
	case FreeMem:
		return "free-mem"
	}
	return fmt.Sprintf("close-op(%d)", uint8(o))
}

// InvalidOpError is returned for an unknown op.
type InvalidOpError struct {
	Op fmt.Stringer
}

func (e *InvalidOpError) Error() string {
	return "invalid file op " + e.Op.String()
}

// Driver is the file store device class.
type Driver struct {
	gate  *device.Gate
	fs    FS
	card  CardDetector
	sleep device.Sleeper
}

// New creates a Driver. A nil card means AlwaysInserted.
func New(gate *device.Gate, fs FS, card CardDetector) *Driver {
	if card == nil {
		card = AlwaysInserted{}
	}
	return &Driver{gate: gate, fs: fs, card: card, sleep: device.Sleep}
}

// WithSleeper sets the Sleeper used while waiting for the card.
func (d *Driver) WithSleeper(s device.Sleeper) *Driver {
	d.sleep = s
	return d
}

// Gate returns the arbitration gate.
func (d *Driver) Gate() *device.Gate {
	return d.gate
}

// Open waits for the card, bounded by ctx, then claims the store for id
// and mounts the volume.
func (d *Driver) Open(ctx context.Context, id device.ClientID) error {
	if err := d.WaitCard(ctx); err != nil {
		return err
	}
	return d.gate.Open(ctx, id, func(first bool) error {
		return d.fs.Mount()
	})
}

// WaitCard polls the card detector until a card is inserted.
func (d *Driver) WaitCard(ctx context.Context) error {
	if d.card.Inserted() {
		return nil
	}
	glog.Infof("%s: waiting for card", d.gate.Name())
	for !d.card.Inserted() {
		if err := d.sleep(ctx, CardPollInterval); err != nil {
			return err
		}
	}
	glog.Infof("%s: card detected", d.gate.Name())
	return nil
}

// Write creates, appends or makes a directory.
func (d *Driver) Write(ctx context.Context, id device.ClientID, op WriteOp, text, name string) error {
	return d.gate.Do(ctx, id, op.String(), func() error {
		switch op {
		case NewFile:
			return d.fs.CreateFile(name, []byte(text))
		case Mkdir:
			return d.fs.Mkdir(name)
		case OpenFile:
			return d.fs.AppendFile(name, []byte(text))
		}
		return &InvalidOpError{Op: op}
	})
}

// Read returns the head of a file, the volume size or the file listing
// under name, as text.
func (d *Driver) Read(ctx context.Context, id device.ClientID, op ReadOp, name string) (out []byte, err error) {
	err = d.gate.Do(ctx, id, op.String(), func() error {
		switch op {
		case ReadFile:
			out, err = d.fs.ReadFile(name, MaxReadSize)
			return err
		case ShowSize:
			u, err := d.fs.Usage()
			if err != nil {
				return err
			}
			out = []byte(fmt.Sprintf("%d MB total drive space.\n%d MB available.\n", u.Total>>20, u.Free>>20))
			return nil
		case ShowFiles:
			var buf bytes.Buffer
			err := d.fs.Walk(name, func(fn string) error {
				buf.WriteString(fn)
				buf.WriteByte('\n')
				return nil
			})
			out = buf.Bytes()
			return err
		}
		return &InvalidOpError{Op: op}
	})
	return
}

// Close removes an entry, unmounts the volume, or releases the store.
func (d *Driver) Close(ctx context.Context, id device.ClientID, op CloseOp, name string) error {
	return d.gate.Close(ctx, id, func() (bool, error) {
		switch op {
		case Remove:
			return false, d.fs.Remove(name)
		case Unmount:
			return false, d.fs.Unmount()
		case FreeMem:
			return true, nil
		}
		return false, &InvalidOpError{Op: op}
	})
}
