package httptransport

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/activation"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Listen returns the net.Listener this transport should serve on.
// When the process was started under systemd socket activation (one
// or more file descriptors were passed via LISTEN_FDS), the first
// activation listener is reused instead of binding addr directly.
func Listen(addr string) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		logging.Debug("Transport", "systemd activation check failed, binding %s directly: %v", addr, err)
	} else if len(listeners) > 0 {
		logging.Info("Transport", "using systemd-activated listener (%d sockets received)", len(listeners))
		return listeners[0], nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("httptransport: binding %s: %w", addr, err)
	}
	return ln, nil
}

// Run constructs an *http.Server around the transport's Handler and
// serves on ln until the server is shut down.
func (s *Server) Run(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.Serve(ln)
}
