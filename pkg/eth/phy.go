package eth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// MII gives access to the PHY management registers.
type MII interface {
	ReadPHY(reg uint8) (uint16, error)
	WritePHY(reg uint8, val uint16) error
}

// PHY registers
const (
	RegBMCR = 0x00
	RegBMSR = 0x01
	RegIDR1 = 0x02
	RegIDR2 = 0x03
)

// PHY register bits
const (
	BMCRReset   = 0x8000
	BMCRAutoNeg = 0x3000

	BMSRAutoNegComplete = 0x0020

	StatusLink       = 0x0001
	Status10BaseT    = 0x0002
	StatusFullDuplex = 0x0004
)

// DefaultPHYID is the part number of the on-board PHY (LAN8720).
const DefaultPHYID = 0x0007c0f0

// Default bounds of the negotiation loops.
const (
	DefaultAttempts      = 10
	DefaultResetAttempts = 100
	DefaultPollInterval  = 10 * time.Millisecond
)

// Link is the negotiated link mode.
type Link struct {
	FullDuplex bool
	Speed100   bool
}

func (l Link) String() string {
	speed, duplex := "10M", "half"
	if l.Speed100 {
		speed = "100M"
	}
	if l.FullDuplex {
		duplex = "full"
	}
	return speed + "/" + duplex
}

// Negotiator runs the bounded PHY reset and negotiation loops.
type Negotiator struct {
	MII           MII
	Attempts      int
	ResetAttempts int
	Interval      time.Duration
	Sleep         device.Sleeper
}

// NewNegotiator creates a Negotiator with default bounds.
func NewNegotiator(mii MII) *Negotiator {
	return &Negotiator{
		MII:           mii,
		Attempts:      DefaultAttempts,
		ResetAttempts: DefaultResetAttempts,
		Interval:      DefaultPollInterval,
		Sleep:         device.Sleep,
	}
}

// poll reads reg up to attempts times, sleeping between reads, until
// done returns true. It returns the last value read.
func (n *Negotiator) poll(ctx context.Context, op string, reg uint8, attempts int, done func(uint16) bool) (uint16, error) {
	sleep := n.Sleep
	if sleep == nil {
		sleep = device.Sleep
	}
	var val uint16
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, n.Interval); err != nil {
				return val, err
			}
		}
		var err error
		if val, err = n.MII.ReadPHY(reg); err != nil {
			return val, err
		}
		if done(val) {
			glog.V(4).Infof("phy %s done after %d polls", op, i+1)
			return val, nil
		}
	}
	return val, &device.NegotiationError{Op: op, Attempts: attempts}
}

// Reset puts the PHY into reset and waits for the reset to end.
func (n *Negotiator) Reset(ctx context.Context) error {
	if err := n.MII.WritePHY(RegBMCR, BMCRReset); err != nil {
		return err
	}
	_, err := n.poll(ctx, "phy-reset", RegBMCR, n.ResetAttempts, func(v uint16) bool {
		return v&BMCRReset == 0
	})
	return err
}

// ID reads the PHY identifier, with the revision bits masked.
func (n *Negotiator) ID() (uint32, error) {
	id1, err := n.MII.ReadPHY(RegIDR1)
	if err != nil {
		return 0, err
	}
	id2, err := n.MII.ReadPHY(RegIDR2)
	if err != nil {
		return 0, err
	}
	return uint32(id1)<<16 | uint32(id2&0xfff0), nil
}

// CheckID verifies the PHY part number.
func (n *Negotiator) CheckID(expected uint32) error {
	id, err := n.ID()
	if err != nil {
		return err
	}
	if id != expected {
		return fmt.Errorf("unexpected phy id 0x%08x, want 0x%08x", id, expected)
	}
	return nil
}

// AutoNegotiate starts auto-negotiation and waits for completion.
func (n *Negotiator) AutoNegotiate(ctx context.Context) error {
	if err := n.MII.WritePHY(RegBMCR, BMCRAutoNeg); err != nil {
		return err
	}
	_, err := n.poll(ctx, "phy-autoneg", RegBMSR, n.Attempts, func(v uint16) bool {
		return v&BMSRAutoNegComplete != 0
	})
	return err
}

// WaitLink waits for the link and reports its mode.
func (n *Negotiator) WaitLink(ctx context.Context) (Link, error) {
	val, err := n.poll(ctx, "phy-link", RegBMSR, n.Attempts, func(v uint16) bool {
		return v&StatusLink != 0
	})
	if err != nil {
		return Link{}, err
	}
	return Link{
		FullDuplex: val&StatusFullDuplex != 0,
		Speed100:   val&Status10BaseT == 0,
	}, nil
}
