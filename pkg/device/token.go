package device

import "strconv"

// ClientID is the stable identity of a thread using a device.
type ClientID uint8

// NoClient is the sentinel meaning the token is free.
const NoClient ClientID = 0

// String implements fmt.Stringer.
func (c ClientID) String() string {
	if c == NoClient {
		return "none"
	}
	return "client#" + strconv.Itoa(int(c))
}

// Token records which client owns a device. It lives in a pool block so
// it can be reserved and released with the device.
type Token struct {
	owner ClientID
}

// Reset implements Block.
func (t *Token) Reset() {
	t.owner = NoClient
}

// Owner returns the current owner, NoClient if free.
func (t *Token) Owner() ClientID {
	return t.owner
}

// IsFree indicates nobody owns the token.
func (t *Token) IsFree() bool {
	return t.owner == NoClient
}

// Claim takes the token for id. Claiming again by the owner is harmless.
func (t *Token) Claim(id ClientID) error {
	if id == NoClient {
		return ErrInvalidClient
	}
	if t.owner != NoClient && t.owner != id {
		return ErrBusy
	}
	t.owner = id
	return nil
}

// Check verifies id owns the token.
func (t *Token) Check(id ClientID) error {
	if id == NoClient || t.owner != id {
		return ErrNotOwner
	}
	return nil
}

// Release frees the token if id owns it.
func (t *Token) Release(id ClientID) error {
	if err := t.Check(id); err != nil {
		return err
	}
	t.owner = NoClient
	return nil
}
