package eth

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// MAC is the Ethernet MAC as seen by bring-up.
type MAC interface {
	// Reset resets the MAC and its rx/tx datapaths.
	Reset() error
	// SetLink applies the negotiated duplex and speed.
	SetLink(Link) error
	// Enable starts reception and transmission.
	Enable() error
}

// Controller is the MAC, PHY and descriptor rings brought up together.
type Controller struct {
	MAC   MAC
	PHY   *Negotiator
	PHYID uint32
	Rx    *Ring
	Tx    *Ring

	link Link
}

// NewController creates a Controller with default rings.
func NewController(mac MAC, mii MII) *Controller {
	return &Controller{
		MAC:   mac,
		PHY:   NewNegotiator(mii),
		PHYID: DefaultPHYID,
		Rx:    NewRing(NumRxFrags, FragSize),
		Tx:    NewRing(NumTxFrags, FragSize),
	}
}

// Link returns the link mode from the last bring-up.
func (c *Controller) Link() Link {
	return c.link
}

// BringUp initializes the controller. Any failure aborts bring-up.
func (c *Controller) BringUp(ctx context.Context) (Link, error) {
	if err := c.MAC.Reset(); err != nil {
		return Link{}, fmt.Errorf("mac reset: %w", err)
	}
	if err := c.PHY.Reset(ctx); err != nil {
		return Link{}, err
	}
	if c.PHYID != 0 {
		if err := c.PHY.CheckID(c.PHYID); err != nil {
			return Link{}, err
		}
	}
	c.Rx.Reset()
	c.Tx.Reset()
	if err := c.PHY.AutoNegotiate(ctx); err != nil {
		return Link{}, err
	}
	link, err := c.PHY.WaitLink(ctx)
	if err != nil {
		return Link{}, err
	}
	if err := c.MAC.SetLink(link); err != nil {
		return Link{}, fmt.Errorf("mac link setup: %w", err)
	}
	if err := c.MAC.Enable(); err != nil {
		return Link{}, fmt.Errorf("mac enable: %w", err)
	}
	c.link = link
	glog.Infof("ethernet link up %s", link)
	return link, nil
}
