package lcd

import "fmt"

// Op selects the drawing primitive of a Command.
type Op uint8

// Drawing ops
const (
	DrawChar Op = iota
	DrawString
	DrawCircle
	FillCircle
	FillScreen
	DrawRect
	FillRect
	DrawFastLine
	DrawLine
	DrawPixel

	numOps
)

var opNames = [...]string{
	DrawChar:     "draw-char",
	DrawString:   "draw-string",
	DrawCircle:   "draw-circle",
	FillCircle:   "fill-circle",
	FillScreen:   "fill-screen",
	DrawRect:     "draw-rect",
	FillRect:     "fill-rect",
	DrawFastLine: "draw-fast-line",
	DrawLine:     "draw-line",
	DrawPixel:    "draw-pixel",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid indicates o is a known op.
func (o Op) Valid() bool {
	return o < numOps
}

// ParseOp parses the name of an op.
func ParseOp(name string) (Op, error) {
	for n, s := range opNames {
		if s == name {
			return Op(n), nil
		}
	}
	return 0, fmt.Errorf("unknown lcd op %q", name)
}

// Color is an RGB565 color.
type Color uint16

// Colors
const (
	Black  Color = 0x0000
	White  Color = 0xffff
	Red    Color = 0xf800
	Green  Color = 0x07e0
	Blue   Color = 0x001f
	Yellow Color = 0xffe0
	Cyan   Color = 0x07ff
)

// Command is the command block of the LCD, drawn from a single-block
// pool on open. Fields not used by Op are ignored.
type Command struct {
	Op     Op
	X, Y   uint16
	X1, Y1 uint16
	Char   byte
	Text   string
	Color  Color
	BColor Color
	Size   uint8
	Radius uint16
	Width  uint16
	Height uint16
	Length uint16
	// Vertical is the direction of DrawFastLine.
	Vertical bool
}

// Reset implements device.Block.
func (c *Command) Reset() {
	*c = Command{}
}

func (c *Command) String() string {
	switch c.Op {
	case DrawChar:
		return fmt.Sprintf("%s (%d,%d) %q", c.Op, c.X, c.Y, c.Char)
	case DrawString:
		return fmt.Sprintf("%s (%d,%d) %q", c.Op, c.X, c.Y, c.Text)
	case DrawCircle, FillCircle:
		return fmt.Sprintf("%s (%d,%d) r=%d", c.Op, c.X, c.Y, c.Radius)
	case FillScreen:
		return fmt.Sprintf("%s 0x%04x", c.Op, uint16(c.Color))
	case DrawRect, FillRect:
		return fmt.Sprintf("%s (%d,%d) %dx%d", c.Op, c.X, c.Y, c.Width, c.Height)
	case DrawFastLine:
		return fmt.Sprintf("%s (%d,%d) len=%d vertical=%v", c.Op, c.X, c.Y, c.Length, c.Vertical)
	case DrawLine:
		return fmt.Sprintf("%s (%d,%d)-(%d,%d)", c.Op, c.X, c.Y, c.X1, c.Y1)
	}
	return fmt.Sprintf("%s (%d,%d)", c.Op, c.X, c.Y)
}
