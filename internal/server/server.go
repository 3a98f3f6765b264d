// Package server runs the sharing service as a start/stoppable host.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// State tells whether the host is serving.
type State int

const (
	StateOff State = iota
	StateOn
)

func (s State) String() string {
	if s == StateOn {
		return "On"
	}
	return "Off"
}

// ShareServer owns the HTTP listener lifecycle. Start and Stop may be
// called repeatedly and from any goroutine; calls that match the
// current state are no-ops.
type ShareServer struct {
	handler http.Handler
	l       *log.Entry

	mu    sync.Mutex
	state State
	srv   *http.Server
	done  chan struct{}
	addr  net.Addr
}

func New(handler http.Handler, l *log.Entry) *ShareServer {
	return &ShareServer{handler: handler, l: l}
}

// Start binds the listener on the given port and begins serving in
// the background. Bind failures are reported to the caller; later
// serve failures flip the server back to off.
func (s *ShareServer) Start(port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOn {
		s.l.Warn("server is already running")
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	s.srv = &http.Server{Handler: s.handler}
	s.done = make(chan struct{})
	s.addr = ln.Addr()
	s.state = StateOn
	s.l.WithField("addr", s.addr.String()).Info("server started")

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.WithError(err).Error("serve returned an error")
			s.mu.Lock()
			if s.srv == srv {
				s.state = StateOff
			}
			s.mu.Unlock()
		}
	}(s.srv, s.done)
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *ShareServer) Stop() error {
	s.mu.Lock()
	if s.state == StateOff {
		s.mu.Unlock()
		s.l.Warn("server is already stopped")
		return nil
	}
	srv, done := s.srv, s.done
	s.state = StateOff
	s.srv = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-done
	s.l.Info("server stopped")
	if err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *ShareServer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address while the server is on. Useful when
// starting on port 0.
func (s *ShareServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
