package eth

import (
	"context"
	"strings"
)

// Status is the socket status of the IP stack.
type Status uint8

// Socket status flags
const (
	StatusActive Status = 1 << iota
	StatusConnected
	StatusTxBufReleased
)

func (s Status) String() string {
	var flags []string
	if s&StatusActive != 0 {
		flags = append(flags, "active")
	}
	if s&StatusConnected != 0 {
		flags = append(flags, "connected")
	}
	if s&StatusTxBufReleased != 0 {
		flags = append(flags, "tx-released")
	}
	if len(flags) == 0 {
		return "closed"
	}
	return strings.Join(flags, "|")
}

// Endpoint is the address an active open connects to.
type Endpoint struct {
	RemoteIP   [4]byte
	RemotePort uint16
	LocalPort  uint16
}

// Stack is the single-socket IP stack the driver drives.
type Stack interface {
	// Init performs low level initialization, including link bring-up.
	Init(ctx context.Context) error
	// ActiveOpen starts connecting to a remote endpoint.
	ActiveOpen(ep Endpoint) error
	// PassiveOpen starts listening on a local port.
	PassiveOpen(localPort uint16) error
	// Close closes the socket without waiting for pending tx data, which
	// is still sent unless the socket is reopened or reset first.
	Close() error
	// Status returns the socket status.
	Status() Status
	// TransmitTxBuffer sends up to MaxTxDataSize bytes.
	TransmitTxBuffer(data []byte) error
	// RxData returns the received data not yet released.
	RxData() []byte
	// ReleaseRxBuffer releases the data returned by RxData.
	ReleaseRxBuffer()
	// Reset clears the socket state machine.
	Reset()
}
