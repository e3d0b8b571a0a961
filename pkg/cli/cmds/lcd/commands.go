package lcd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtdev.go/pkg/cli/sh"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/lcd"
)

const cmdKey = "lcd.cmd"

func parseNums(args []string) ([]uint16, error) {
	nums := make([]uint16, len(args))
	for n, arg := range args {
		val, err := strconv.ParseUint(arg, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("Invalid argument %q: %v", arg, err)
		}
		nums[n] = uint16(val)
	}
	return nums, nil
}

// fill sets the command fields from numeric arguments in the order
// given by the op.
func fill(cmd *lcd.Command, args []string) error {
	need := map[lcd.Op]int{
		lcd.DrawChar:     3,
		lcd.DrawString:   2,
		lcd.DrawCircle:   4,
		lcd.FillCircle:   4,
		lcd.FillScreen:   1,
		lcd.DrawRect:     5,
		lcd.FillRect:     5,
		lcd.DrawFastLine: 5,
		lcd.DrawLine:     5,
		lcd.DrawPixel:    3,
	}[cmd.Op]
	if len(args) < need {
		return fmt.Errorf("%s needs %d arguments", cmd.Op, need)
	}
	switch cmd.Op {
	case lcd.DrawString:
		cmd.Text = strings.Join(args[2:], " ")
		args = args[:2]
	case lcd.DrawChar:
		if len(args[2]) != 1 {
			return fmt.Errorf("a single character expected")
		}
		cmd.Char = args[2][0]
		args = args[:2]
	}
	nums, err := parseNums(args)
	if err != nil {
		return err
	}
	switch cmd.Op {
	case lcd.DrawChar, lcd.DrawString:
		cmd.X, cmd.Y = nums[0], nums[1]
	case lcd.DrawCircle, lcd.FillCircle:
		cmd.X, cmd.Y, cmd.Radius, cmd.Color = nums[0], nums[1], nums[2], lcd.Color(nums[3])
	case lcd.FillScreen:
		cmd.Color = lcd.Color(nums[0])
	case lcd.DrawRect, lcd.FillRect:
		cmd.X, cmd.Y, cmd.Width, cmd.Height, cmd.Color = nums[0], nums[1], nums[2], nums[3], lcd.Color(nums[4])
	case lcd.DrawFastLine:
		cmd.X, cmd.Y, cmd.Length, cmd.Color = nums[0], nums[1], nums[2], lcd.Color(nums[4])
		cmd.Vertical = nums[3] != 0
	case lcd.DrawLine:
		cmd.X, cmd.Y, cmd.X1, cmd.Y1, cmd.Color = nums[0], nums[1], nums[2], nums[3], lcd.Color(nums[4])
	case lcd.DrawPixel:
		cmd.X, cmd.Y, cmd.Color = nums[0], nums[1], lcd.Color(nums[2])
	}
	return nil
}

var (
	// OpenCmd initializes the LCD.
	OpenCmd = ishell.Cmd{
		Name:    "lcd.open",
		Aliases: []string{"lo"},
		Help:    "[COLOR] [ROTATION]",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			nums, err := parseNums(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			color, rotation := lcd.Black, uint16(lcd.DefaultRotation)
			if len(nums) > 0 {
				color = lcd.Color(nums[0])
			}
			if len(nums) > 1 {
				rotation = nums[1]
			}
			if rotation > 0xff {
				c.Err(lcd.ErrInvalidRotation)
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			cmd, err := s.Board.LCD.Open(ctx, id, color, uint8(rotation))
			if err == nil {
				s.SetValue(cmdKey, cmd)
			}
			s.Result(c, nil, err)
		}),
	}

	// DrawCmd draws with the command block.
	DrawCmd = ishell.Cmd{
		Name:    "lcd.draw",
		Aliases: []string{"ld"},
		Help: "OP ARGS...\n" +
			"  draw-char X Y C | draw-string X Y TEXT... | draw-circle/fill-circle X Y R COLOR\n" +
			"  fill-screen COLOR | draw-rect/fill-rect X Y W H COLOR | draw-fast-line X Y LEN VERTICAL COLOR\n" +
			"  draw-line X Y X1 Y1 COLOR | draw-pixel X Y COLOR",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			cmd, _ := s.Value(cmdKey).(*lcd.Command)
			if cmd == nil {
				c.Err(fmt.Errorf("lcd not open"))
				return
			}
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("OP required"))
				return
			}
			op, err := lcd.ParseOp(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			color, bcolor := cmd.Color, cmd.BColor
			cmd.Reset()
			cmd.Op, cmd.Color, cmd.BColor, cmd.Size = op, color, bcolor, 1
			if err := fill(cmd, c.Args[1:]); err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.LCD.Write(ctx, id, cmd))
		}),
	}

	// CloseCmd releases the LCD.
	CloseCmd = ishell.Cmd{
		Name:    "lcd.close",
		Aliases: []string{"lc"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			err := s.Board.LCD.Close(ctx, id)
			if err == nil {
				s.SetValue(cmdKey, nil)
			}
			s.Result(c, nil, err)
		}),
	}
)

func init() {
	sh.AddCmds(
		&OpenCmd,
		&DrawCmd,
		&CloseCmd,
	)
}
