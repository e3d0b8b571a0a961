package board

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/rtdev.go/pkg/uart"
)

// TerminalPath is the URL path prefix of UART terminals.
const TerminalPath = "/uart/"

// TerminalServer serves websocket terminals. A connection to /uart/<n>
// becomes the terminal of UART n until it closes or another one
// replaces it.
type TerminalServer struct {
	Addr      string
	Terminals []*uart.Terminal
}

// NewTerminalServer creates a TerminalServer.
func NewTerminalServer(addr string, terms []*uart.Terminal) *TerminalServer {
	return &TerminalServer{Addr: addr, Terminals: terms}
}

// Name implements rtos.Named.
func (s *TerminalServer) Name() string {
	return "terminal-server"
}

// Handler returns the HTTP handler.
func (s *TerminalServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(TerminalPath, websocket.Handler(s.serve))
	return mux
}

func (s *TerminalServer) terminal(path string) *uart.Terminal {
	n, err := strconv.Atoi(strings.TrimPrefix(path, TerminalPath))
	if err != nil || n < 0 || n >= len(s.Terminals) {
		return nil
	}
	return s.Terminals[n]
}

func (s *TerminalServer) serve(conn *websocket.Conn) {
	path := conn.Request().URL.Path
	term := s.terminal(path)
	if term == nil {
		glog.Warningf("terminal %s: not available", path)
		return
	}
	glog.Infof("terminal %s: attached from %s", path, conn.Request().RemoteAddr)
	select {
	case <-term.Attach(conn):
	case <-conn.Request().Context().Done():
	}
	glog.Infof("terminal %s: detached", path)
}

// Run implements rtos.Runnable.
func (s *TerminalServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	glog.Infof("terminals on %s%s<n>", ln.Addr(), TerminalPath)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		for _, t := range s.Terminals {
			if t != nil {
				t.Close()
			}
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
