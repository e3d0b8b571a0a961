package board

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/eth"
	"github.com/robotalks/rtdev.go/pkg/touch"
)

// SimPHY is an MII with a PHY that completes reset and negotiation
// after a few polls and reports a 100M full duplex link.
type SimPHY struct {
	lock  sync.Mutex
	bmcr  uint16
	polls int
	id    uint32
}

// NewSimPHY creates a SimPHY reporting the on-board PHY ID.
func NewSimPHY() *SimPHY {
	return &SimPHY{id: eth.DefaultPHYID}
}

// ReadPHY implements eth.MII.
func (p *SimPHY) ReadPHY(reg uint8) (uint16, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch reg {
	case eth.RegBMCR:
		if p.bmcr&eth.BMCRReset != 0 {
			if p.polls++; p.polls > 2 {
				p.bmcr &^= eth.BMCRReset
			}
		}
		return p.bmcr, nil
	case eth.RegBMSR:
		if p.bmcr&eth.BMCRAutoNeg == 0 {
			return 0, nil
		}
		if p.polls++; p.polls < 3 {
			return 0, nil
		}
		return eth.BMSRAutoNegComplete | eth.StatusLink | eth.StatusFullDuplex, nil
	case eth.RegIDR1:
		return uint16(p.id >> 16), nil
	case eth.RegIDR2:
		return uint16(p.id), nil
	}
	return 0, nil
}

// WritePHY implements eth.MII.
func (p *SimPHY) WritePHY(reg uint8, val uint16) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if reg == eth.RegBMCR {
		p.bmcr, p.polls = val, 0
	}
	return nil
}

// SimMAC is a MAC which only logs.
type SimMAC struct{}

// Reset implements eth.MAC.
func (SimMAC) Reset() error {
	glog.V(2).Info("emac: reset")
	return nil
}

// SetLink implements eth.MAC.
func (SimMAC) SetLink(l eth.Link) error {
	glog.Infof("emac: link %s", l)
	return nil
}

// Enable implements eth.MAC.
func (SimMAC) Enable() error {
	glog.V(2).Info("emac: rx/tx enabled")
	return nil
}

// SimTouch is a touch panel pressed by a virtual finger. Each press
// lands on the next of Targets, followed by a release, so calibration
// against the same targets succeeds.
type SimTouch struct {
	Targets [3]touch.Point

	lock    sync.Mutex
	next    int
	pressed bool
}

// NewSimTouch creates a SimTouch pressing the default targets.
func NewSimTouch() *SimTouch {
	return &SimTouch{Targets: touch.DefaultTargets}
}

// SimRaw converts a display point to raw panel units.
func SimRaw(p touch.Point) touch.Point {
	return touch.Point{X: 4000 - 12*p.X, Y: 300 + 15*p.Y}
}

// Init implements touch.Sampler.
func (s *SimTouch) Init() error {
	s.lock.Lock()
	s.next, s.pressed = 0, false
	s.lock.Unlock()
	return nil
}

// Sample implements touch.Sampler.
func (s *SimTouch) Sample() (touch.Point, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.pressed {
		s.pressed = false
		return touch.Point{}, false, nil
	}
	pt := s.Targets[s.next%len(s.Targets)]
	s.next++
	s.pressed = true
	return SimRaw(pt), true, nil
}
