package file

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtdev.go/pkg/cli/sh"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/file"
)

var (
	writeOps = map[string]file.WriteOp{
		"new":   file.NewFile,
		"mkdir": file.Mkdir,
		"open":  file.OpenFile,
	}
	readOps = map[string]file.ReadOp{
		"file":  file.ReadFile,
		"size":  file.ShowSize,
		"files": file.ShowFiles,
	}
	closeOps = map[string]file.CloseOp{
		"remove":  file.Remove,
		"unmount": file.Unmount,
		"free":    file.FreeMem,
	}
)

func argOr(c *ishell.Context, n int, def string) string {
	if n < len(c.Args) {
		return c.Args[n]
	}
	return def
}

var (
	// OpenCmd waits for the card and mounts it.
	OpenCmd = ishell.Cmd{
		Name:    "file.open",
		Aliases: []string{"fo"},
		Help:    "",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.File.Open(ctx, id))
		}),
	}

	// WriteCmd creates or appends a file, or makes a directory.
	WriteCmd = ishell.Cmd{
		Name:    "file.write",
		Aliases: []string{"fw"},
		Help:    "new|mkdir|open NAME [TEXT...]",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			op, ok := writeOps[argOr(c, 0, "")]
			if !ok || len(c.Args) < 2 {
				c.Err(fmt.Errorf("new|mkdir|open NAME expected"))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			text := strings.Join(c.Args[2:], " ")
			s.Result(c, nil, s.Board.File.Write(ctx, id, op, text, c.Args[1]))
		}),
	}

	// ReadCmd prints a file head, the volume size or the file listing.
	ReadCmd = ishell.Cmd{
		Name:    "file.read",
		Aliases: []string{"fr"},
		Help:    "file NAME | size | files [DIR]",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			op, ok := readOps[argOr(c, 0, "")]
			if !ok {
				c.Err(fmt.Errorf("file|size|files expected"))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			out, err := s.Board.File.Read(ctx, id, op, argOr(c, 1, "/"))
			s.Result(c, out, err)
		}),
	}

	// CloseCmd removes an entry, unmounts or releases the store.
	CloseCmd = ishell.Cmd{
		Name:    "file.close",
		Aliases: []string{"fc"},
		Help:    "remove NAME | unmount | free",
		Func: sh.MustHaveThread(func(c *ishell.Context, s *sh.Shell, id device.ClientID) {
			op, ok := closeOps[argOr(c, 0, "")]
			if !ok {
				c.Err(fmt.Errorf("remove|unmount|free expected"))
				return
			}
			ctx, cancel := s.Context()
			defer cancel()
			s.Result(c, nil, s.Board.File.Close(ctx, id, op, argOr(c, 1, "")))
		}),
	}
)

func init() {
	sh.AddCmds(
		&OpenCmd,
		&WriteCmd,
		&ReadCmd,
		&CloseCmd,
	)
}
