package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtdev.go/pkg/board"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/rtos"
)

// Shell provides ishell backed interactive shell acting as board
// threads.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Board  *board.Board
	Thread *rtos.Thread

	values map[string]interface{}
}

const (
	shellKey          = "$shell"
	unselectedPrompt  = "[none] > "
	defaultCmdTimeout = 5 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	cmdTimeout = defaultCmdTimeout

	// commands
	commands = []*ishell.Cmd{
		&ThreadCmd,
		&ThreadsCmd,
		&SignalCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&cmdTimeout, "timeout", cmdTimeout, "Timeout of a device command.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(b *board.Board) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     cmdTimeout,

		Shell:  ishell.New(),
		Board:  b,
		values: make(map[string]interface{}),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unselectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Value gets per-thread state kept by command providers.
func (s *Shell) Value(key string) interface{} {
	if s.Thread == nil {
		return nil
	}
	return s.values[s.Thread.Name()+"/"+key]
}

// SetValue sets per-thread state. nil removes the state.
func (s *Shell) SetValue(key string, val interface{}) {
	if s.Thread == nil {
		return
	}
	if val == nil {
		delete(s.values, s.Thread.Name()+"/"+key)
		return
	}
	s.values[s.Thread.Name()+"/"+key] = val
}

// Select makes the named thread current, spawning it on first use.
func (s *Shell) Select(name string) error {
	th := s.Board.Threads.Lookup(name)
	if th == nil {
		var err error
		if th, err = s.Board.Spawn(name, nil); err != nil {
			return err
		}
	}
	s.Thread = th
	s.Shell.SetPrompt(fmt.Sprintf("%s(%d) > ", th.Name(), th.ID()))
	return nil
}

// MustHaveThread wraps command func requires a current thread.
func MustHaveThread(fn func(c *ishell.Context, s *Shell, id device.ClientID)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Thread == nil {
			c.Err(fmt.Errorf("no thread selected"))
			return
		}
		fn(c, s, s.Thread.ID())
	}
}

// Context returns the context of a device command.
func (s *Shell) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.Timeout)
}

// Result prints the outcome of a device command.
func (s *Shell) Result(c *ishell.Context, out interface{}, err error) {
	if s.OutputJSON {
		res := struct {
			Result string      `json:"result"`
			Error  string      `json:"error,omitempty"`
			Output interface{} `json:"output,omitempty"`
		}{Result: device.ResultOf(err).String(), Output: out}
		if err != nil {
			res.Error = err.Error()
		}
		data, _ := json.Marshal(res)
		c.Println(string(data))
		return
	}
	if err != nil {
		c.Err(err)
		return
	}
	switch v := out.(type) {
	case nil:
		c.Println("OK")
	case []byte:
		c.Print(string(v))
		if len(v) == 0 || v[len(v)-1] != '\n' {
			c.Println()
		}
	default:
		c.Println(v)
	}
}

// ArgUint parses the n-th argument as an unsigned number.
func ArgUint(c *ishell.Context, n int, bits int) (uint64, error) {
	if n >= len(c.Args) {
		return 0, fmt.Errorf("missing argument %d", n+1)
	}
	return strconv.ParseUint(c.Args[n], 0, bits)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ThreadCmd selects the thread acting in following commands.
	ThreadCmd = ishell.Cmd{
		Name:    "thread",
		Aliases: []string{"t"},
		Help:    "NAME",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("thread name expected"))
				return
			}
			if err := ShellFrom(c).Select(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// ThreadsCmd lists threads.
	ThreadsCmd = ishell.Cmd{
		Name:    "threads",
		Aliases: []string{"ts"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			for _, th := range s.Board.Threads.All() {
				mark := " "
				if th == s.Thread {
					mark = "*"
				}
				c.Printf("%s %3d %s flags=0x%x\n", mark, th.ID(), th.Name(), th.Flags())
			}
		},
	}

	// SignalCmd sets event flags of a thread.
	SignalCmd = ishell.Cmd{
		Name:    "signal",
		Aliases: []string{"sig"},
		Help:    "NAME FLAGS",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("thread name and flags expected"))
				return
			}
			th := s.Board.Threads.Lookup(c.Args[0])
			if th == nil {
				c.Err(fmt.Errorf("unknown thread %q", c.Args[0]))
				return
			}
			flags, err := ArgUint(c, 1, 32)
			if err != nil {
				c.Err(err)
				return
			}
			prev := th.Set(int32(flags))
			c.Printf("0x%x -> 0x%x\n", prev, th.Flags())
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	board.SetupFlags()
	flag.Parse()
	b := board.NewConfig().MustNewBoard()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)
	New(b).Run(flag.Args()...)
}
