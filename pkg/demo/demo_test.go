package demo

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtdev.go/pkg/board"
	"github.com/robotalks/rtdev.go/pkg/device"
	"github.com/robotalks/rtdev.go/pkg/lcd"
)

func testBoard(t *testing.T) (*board.Board, string) {
	conf := board.NewConfig()
	conf.Name = "demo"
	conf.MQTTBrokerURL = ""
	conf.SerialDevices = nil
	conf.TerminalAddr = ""
	conf.CardDetectPin = ""
	conf.TouchSPI = ""
	conf.EthHost = "127.0.0.1"
	conf.SDRoot = t.TempDir()
	b, err := conf.NewBoard()
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	b.Touch.WithSleeper(device.NoSleep)
	return b, conf.SDRoot
}

func testDemoConfig() *Config {
	conf := NewConfig()
	conf.EthPort = 0
	conf.Delay = 0
	conf.PollInterval = time.Millisecond
	conf.TouchSamples = 3
	return conf
}

func TestNewInvalidPort(t *testing.T) {
	conf := testDemoConfig()
	conf.EthPort = 70000
	b, _ := testBoard(t)
	_, err := conf.New(b)
	require.Error(t, err)
}

func TestChain(t *testing.T) {
	b, root := testBoard(t)
	d, err := testDemoConfig().New(b)
	require.NoError(t, err)

	host, dev := net.Pipe()
	defer host.Close()
	b.Terminals[0].Attach(dev)
	lines := make(chan string, 16)
	go func() {
		r := bufio.NewReader(host)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	expect := func(want string) {
		select {
		case line := <-lines:
			require.Equal(t, want, line)
		case <-ctx.Done():
			t.Fatalf("waiting for %q: %v", want, ctx.Err())
		}
	}
	expect("Hello UART, checking the serial port on the board\n")
	_, err = host.Write([]byte("hello\r"))
	require.NoError(t, err)
	expect("hello\n")
	_, err = host.Write([]byte("next thread\r"))
	require.NoError(t, err)

	var addr net.Addr
	for addr == nil {
		require.NoError(t, ctx.Err())
		addr = b.Stack.Addr()
		time.Sleep(time.Millisecond)
	}
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	greeting, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Ethernet configured\n", greeting)
	_, err = conn.Write([]byte("next feature\r\n"))
	require.NoError(t, err)

	require.NoError(t, <-done)

	content, err := os.ReadFile(filepath.Join(root, "FILE.TXT"))
	require.NoError(t, err)
	require.Equal(t, "FIRST FILE FROM THE BOARD\r\n", string(content))
	content, err = os.ReadFile(filepath.Join(root, "FOLDER", "FILE_DIR.TXT"))
	require.NoError(t, err)
	require.Equal(t, "FILE IN A DIRECTORY CALLED FOLDER\r\n", string(content))

	for _, th := range []interface{ Flags() int32 }{d.UART, d.Eth, d.File, d.LCD, d.Touch} {
		require.Zero(t, th.Flags())
	}
	cmds := b.Display.Commands()
	require.NotEmpty(t, cmds)
	last := cmds[len(cmds)-1]
	require.Equal(t, lcd.FillRect, last.Op)
	require.Equal(t, lcd.White, last.Color)
	require.Equal(t, 2, b.Display.Inits())
}
