// Package device provides the single-owner arbitration shared by all
// peripheral drivers.
package device

// A device class (all UARTs, the Ethernet stack, the LCD, ...) is owned
// by at most one client at a time. The owner is recorded in a Token
// which is itself a block drawn from a one-block Arena: the first open
// reserves it and brings up the hardware, the final close returns it.
//
// Every gated call runs through a Supervisor, so arbitration checks on
// one class never interleave. Interrupt paths don't go through the
// Supervisor and only touch per-port state with atomics.
//
// Operations by a non-owner fail with ErrNotOwner, opens against an
// owned device fail with ErrBusy. ResultOf maps errors to a Result for
// callers that prefer a status code.
