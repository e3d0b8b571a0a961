package file

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

// CardDetector reports whether the card is in the slot.
type CardDetector interface {
	Inserted() bool
}

// AlwaysInserted is a CardDetector for volumes without a slot.
type AlwaysInserted struct{}

// Inserted implements CardDetector.
func (AlwaysInserted) Inserted() bool {
	return true
}

// Level is the part of gpio.PinIn read by PinDetector.
type Level interface {
	Read() gpio.Level
}

// PinDetector reads the card detect switch, Low while a card is in.
type PinDetector struct {
	Pin Level
}

// OpenPinDetector configures the named gpio as a pulled-up input.
func OpenPinDetector(name string) (*PinDetector, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, err
	}
	return &PinDetector{Pin: pin}, nil
}

// Inserted implements CardDetector.
func (d *PinDetector) Inserted() bool {
	return d.Pin.Read() == gpio.Low
}
