package touch

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

// ADS7846 control bytes: start bit, channel, 12-bit differential mode.
const (
	CmdReadX = 0xd0
	CmdReadY = 0x90

	DefaultSamples   = 8
	DefaultFrequency = 2 * physic.MegaHertz
)

// Sampler reads raw touch coordinates.
type Sampler interface {
	Init() error
	// Sample returns the raw position and whether the panel is pressed.
	Sample() (Point, bool, error)
}

// Transceiver is the part of spi.Conn used by ADS7846.
type Transceiver interface {
	Tx(w, r []byte) error
}

// PenSensor reports the pen interrupt line, Low while pressed.
type PenSensor interface {
	Read() gpio.Level
}

// ADS7846 samples a resistive touch controller over SPI.
type ADS7846 struct {
	Conn Transceiver
	// Pen is optional. Without it a zero reading on both axes means
	// not pressed.
	Pen     PenSensor
	Samples int

	closer interface{ Close() error }
}

// OpenADS7846 connects to the controller on the named SPI port. penPin
// may be empty.
func OpenADS7846(port, penPin string) (*ADS7846, error) {
	p, err := spireg.Open(port)
	if err != nil {
		return nil, err
	}
	c, err := p.Connect(DefaultFrequency, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, err
	}
	a := &ADS7846{Conn: c, Samples: DefaultSamples, closer: p}
	if penPin != "" {
		pin := gpioreg.ByName(penPin)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("unknown gpio %q", penPin)
		}
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			p.Close()
			return nil, err
		}
		a.Pen = pin
	}
	return a, nil
}

// Init implements Sampler.
func (a *ADS7846) Init() error {
	if a.Samples <= 0 {
		a.Samples = DefaultSamples
	}
	// the first conversion after power up is discarded
	_, err := a.read(CmdReadX)
	return err
}

// Sample implements Sampler.
func (a *ADS7846) Sample() (Point, bool, error) {
	if a.Pen != nil && a.Pen.Read() == gpio.High {
		return Point{}, false, nil
	}
	var sx, sy int
	for n := 0; n < a.Samples; n++ {
		x, err := a.read(CmdReadX)
		if err != nil {
			return Point{}, false, err
		}
		y, err := a.read(CmdReadY)
		if err != nil {
			return Point{}, false, err
		}
		sx, sy = sx+x, sy+y
	}
	pt := Point{X: sx / a.Samples, Y: sy / a.Samples}
	if a.Pen == nil && pt.X == 0 && pt.Y == 0 {
		return pt, false, nil
	}
	return pt, true, nil
}

// Close releases the SPI port if opened by OpenADS7846.
func (a *ADS7846) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *ADS7846) read(cmd byte) (int, error) {
	w := []byte{cmd, 0, 0}
	r := make([]byte, len(w))
	if err := a.Conn.Tx(w, r); err != nil {
		return 0, err
	}
	return (int(r[1])<<8 | int(r[2])) >> 3 & 0xfff, nil
}
