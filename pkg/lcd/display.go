package lcd

import (
	"sync"

	"github.com/golang/glog"
)

// Screen size in the default rotation.
const (
	Width  = 320
	Height = 240
)

// Display is the LCD controller with its drawing primitives.
type Display interface {
	Init() error
	FillScreen(Color) error
	SetRotation(uint8) error
	Exec(*Command) error
}

// Recorder is a Display which keeps what was drawn.
type Recorder struct {
	lock       sync.Mutex
	inits      int
	rotation   uint8
	background Color
	commands   []Command
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{rotation: DefaultRotation}
}

// Init implements Display.
func (r *Recorder) Init() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.inits++
	r.commands = nil
	return nil
}

// FillScreen implements Display.
func (r *Recorder) FillScreen(c Color) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.background = c
	r.commands = nil
	return nil
}

// SetRotation implements Display.
func (r *Recorder) SetRotation(rot uint8) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.rotation = rot
	return nil
}

// Exec implements Display.
func (r *Recorder) Exec(cmd *Command) error {
	if cmd.Op == FillScreen {
		return r.FillScreen(cmd.Color)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.commands = append(r.commands, *cmd)
	return nil
}

// Inits returns how many times the display was initialized.
func (r *Recorder) Inits() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.inits
}

// Rotation returns the current rotation.
func (r *Recorder) Rotation() uint8 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.rotation
}

// Background returns the last fill color.
func (r *Recorder) Background() Color {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.background
}

// Commands returns what was drawn since the last fill.
func (r *Recorder) Commands() []Command {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Command(nil), r.commands...)
}

// LogDisplay wraps a Display and logs every command.
type LogDisplay struct {
	Display
	Name string
}

// Exec implements Display.
func (d *LogDisplay) Exec(cmd *Command) error {
	glog.Infof("%s: %s", d.Name, cmd)
	return d.Display.Exec(cmd)
}
