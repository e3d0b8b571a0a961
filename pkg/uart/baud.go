package uart

import (
	"fmt"

	"github.com/robotalks/rtdev.go/pkg/device"
)

// AcceptedBaudError is the accepted baud rate error in percent.
const AcceptedBaudError = 3

// DefaultPCLK is the UART peripheral clock after the /16 oversampling,
// for a 100MHz core clock with PCLK = CCLK/4.
const DefaultPCLK = 100000000 / 4 / 16

// Divisor is a fractional baud rate divider setting.
type Divisor struct {
	// Baud is the requested rate.
	Baud uint32
	// Rate is the rate actually produced.
	Rate      uint32
	MulVal    uint8
	DivAddVal uint8
	Latch     uint16
}

// FDR returns the fractional divider register value.
func (d Divisor) FDR() uint8 {
	return (d.MulVal << 4 & 0xf0) | (d.DivAddVal & 0x0f)
}

// DLM returns the divisor latch MSB.
func (d Divisor) DLM() uint8 {
	return uint8(d.Latch >> 8)
}

// DLL returns the divisor latch LSB.
func (d Divisor) DLL() uint8 {
	return uint8(d.Latch)
}

// Error returns the absolute rate error.
func (d Divisor) Error() uint32 {
	if d.Rate > d.Baud {
		return d.Rate - d.Baud
	}
	return d.Baud - d.Rate
}

func (d Divisor) String() string {
	return fmt.Sprintf("baud=%d rate=%d mul=%d divadd=%d latch=%d", d.Baud, d.Rate, d.MulVal, d.DivAddVal, d.Latch)
}

// SearchDivisor finds the fractional divider producing the rate
// closest to baud from pclk, which is already divided by 16.
// It fails with a *device.NegotiationError when no candidate is within
// AcceptedBaudError percent.
func SearchDivisor(pclk, baud uint32) (Divisor, error) {
	if baud == 0 || pclk == 0 {
		return Divisor{}, &device.NegotiationError{Op: "baud", Detail: fmt.Sprintf("invalid baud %d at pclk %d", baud, pclk)}
	}
	best := Divisor{Baud: baud}
	bestErr := uint64(1) << 63
	attempts := 0
	target := uint64(baud)
search:
	for mul := uint64(1); mul <= 15; mul++ {
		for add := uint64(0); add <= 15; add++ {
			attempts++
			clk := mul * uint64(pclk) / (mul + add)
			div := clk / target
			if clk%target > target/2 {
				div++
			}
			if div <= 2 || div >= 65536 {
				continue
			}
			rate := clk / div
			var e uint64
			if rate <= target {
				e = target - rate
			} else {
				e = rate - target
			}
			if e < bestErr {
				bestErr = e
				best.Rate = uint32(rate)
				best.MulVal, best.DivAddVal, best.Latch = uint8(mul), uint8(add), uint16(div)
				if e == 0 {
					break search
				}
			}
		}
	}
	if bestErr >= target*AcceptedBaudError/100 {
		detail := fmt.Sprintf("no divisor for %d baud within %d%% at pclk %d", baud, AcceptedBaudError, pclk)
		if best.Latch != 0 {
			detail += fmt.Sprintf(", closest %d", best.Rate)
		}
		return Divisor{}, &device.NegotiationError{Op: "baud", Attempts: attempts, Detail: detail}
	}
	return best, nil
}
