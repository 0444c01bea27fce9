// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"context"
	"io"
	"net"
	"os"
	"sync"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/identity"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/metrics"
	"grimm.is/tundra/internal/netcfg"
	"grimm.is/tundra/internal/resolver"
	"grimm.is/tundra/internal/tun"
)

// ServerConfig wires the control plane server.
type ServerConfig struct {
	SocketPath string
	SocketMode os.FileMode
	Registry   *netcfg.Registry
	Policy     *acl.Policy
	Resolver   *resolver.Settings
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
	Version    string
}

// Server accepts control connections, reads the peer's kernel-reported
// identity once per connection, and serializes operations per device
// through the device core.
type Server struct {
	cfg      ServerConfig
	logger   *logging.Logger
	listener *net.UnixListener

	mu     sync.Mutex
	conns  map[*net.UnixConn]struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewServer builds a Server; call Listen then Serve.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("ctlplane")
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*net.UnixConn]struct{}),
	}
}

// Listen binds the Unix socket, replacing a stale socket file from a
// previous run, and applies the configured mode.
func (s *Server) Listen() error {
	if _, err := os.Stat(s.cfg.SocketPath); err == nil {
		// Refuse to steal a live socket; remove only a dead one.
		if conn, err := net.Dial("unix", s.cfg.SocketPath); err == nil {
			conn.Close()
			return errors.Errorf(errors.KindConflict, "socket %s is in use by another process", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			return errors.Wrapf(err, errors.KindSystem, "removing stale socket %s", s.cfg.SocketPath)
		}
		s.logger.Warn("removed stale control socket", "path", s.cfg.SocketPath)
	}

	addr, err := net.ResolveUnixAddr("unix", s.cfg.SocketPath)
	if err != nil {
		return errors.Wrap(err, errors.KindConfig, "resolving socket address")
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindSystem, "listening on %s", s.cfg.SocketPath)
	}

	mode := s.cfg.SocketMode
	if mode == 0 {
		mode = 0600
	}
	if err := os.Chmod(s.cfg.SocketPath, mode); err != nil {
		l.Close()
		return errors.Wrapf(err, errors.KindSystem, "setting mode on %s", s.cfg.SocketPath)
	}

	s.listener = l
	s.logger.Info("control socket listening", "path", s.cfg.SocketPath, "mode", mode.String())
	return nil
}

// Addr returns the bound socket path.
func (s *Server) Addr() string {
	return s.cfg.SocketPath
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops the listener and tears down open connections.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*net.UnixConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) handleConn(conn *net.UnixConn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ActiveConnections.Dec()
		}
	}()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveConnections.Inc()
	}

	caller, err := identity.FromConn(conn)
	if err != nil {
		s.logger.Error("reading peer credentials failed", "error", err)
		return
	}
	s.logger.Debug("control connection opened", "uid", caller.UID, "pid", caller.PID)

	for {
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			if err != io.EOF {
				s.logger.Debug("control connection read failed", "error", err)
			}
			return
		}

		resp, file := s.handle(caller, req)

		if err := WriteFrame(conn, resp); err != nil {
			s.logger.Debug("control connection write failed", "error", err)
			return
		}
		if resp.FDFollows && file != nil {
			if err := sendFD(conn, int(file.Fd())); err != nil {
				s.logger.Error("descriptor transfer failed", "error", err)
				return
			}
		}
	}
}

// handle runs one operation. The returned file, if any, is transferred
// to the peer after the response frame; the device retains its own
// reference, so nothing is closed here.
func (s *Server) handle(caller identity.Caller, req Request) (Response, *os.File) {
	resp, file, err := s.dispatch(caller, req)
	status := "ok"
	if err != nil {
		status = errors.GetKind(err).String()
		resp = Response{Error: wireError(err)}
	} else {
		resp.OK = true
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordOp(string(req.Op), status)
	}
	return resp, file
}

func (s *Server) dispatch(caller identity.Caller, req Request) (Response, *os.File, error) {
	if !req.Op.Valid() {
		return Response{}, nil, errors.Errorf(errors.KindValidation, "unknown operation %q", req.Op)
	}
	// The general caller tier gates every operation, reads included: an
	// unrecognized peer learns nothing, not even device properties.
	// Device operations add the owner tier where required.
	if err := s.authorize(caller); err != nil {
		return Response{}, nil, err
	}
	if req.Op.NeedsHandle() && req.Handle == "" {
		return Response{}, nil, errors.Errorf(errors.KindValidation, "operation %q requires a device handle", req.Op)
	}

	// Registry-level and daemon-level operations first.
	switch req.Op {
	case OpCreateDevice:
		level := 0
		if req.LogLevel != nil {
			level = *req.LogLevel
		}
		d, err := s.cfg.Registry.Create(caller, netcfg.CreateRequest{
			Name:     req.Name,
			Kind:     tun.Kind(req.Kind),
			LogLevel: level,
		})
		if err != nil {
			return Response{}, nil, err
		}
		return Response{Handle: d.Handle()}, nil, nil

	case OpListDevices:
		devices := s.cfg.Registry.List()
		out := make([]netcfg.Properties, 0, len(devices))
		for _, d := range devices {
			out = append(out, d.Properties())
		}
		return Response{Devices: out}, nil, nil

	case OpStatus:
		return Response{Status: s.status()}, nil, nil
	}

	d, err := s.cfg.Registry.Get(req.Handle)
	if err != nil {
		return Response{}, nil, err
	}

	switch req.Op {
	case OpGetDevice:
		p := d.Properties()
		return Response{Device: &p}, nil, nil
	case OpAddIPv4Address:
		return Response{}, nil, d.AddIPv4Address(caller, req.Address, req.Prefix)
	case OpRemoveIPv4Address:
		return Response{}, nil, d.RemoveIPv4Address(caller, req.Address, req.Prefix)
	case OpAddIPv6Address:
		return Response{}, nil, d.AddIPv6Address(caller, req.Address, req.Prefix)
	case OpRemoveIPv6Address:
		return Response{}, nil, d.RemoveIPv6Address(caller, req.Address, req.Prefix)
	case OpAddRoutes:
		return Response{}, nil, d.AddRoutes(caller, req.Targets, req.Gateway)
	case OpRemoveRoutes:
		return Response{}, nil, d.RemoveRoutes(caller, req.Targets, req.Gateway)
	case OpAddDNS:
		return Response{}, nil, d.AddDNS(caller, req.Servers)
	case OpRemoveDNS:
		return Response{}, nil, d.RemoveDNS(caller, req.Servers)
	case OpAddDNSSearch:
		return Response{}, nil, d.AddDNSSearch(caller, req.Domains)
	case OpRemoveDNSSearch:
		return Response{}, nil, d.RemoveDNSSearch(caller, req.Domains)
	case OpSetMTU:
		return Response{}, nil, d.SetMTU(caller, req.MTU)
	case OpSetLogLevel:
		if req.LogLevel == nil {
			return Response{}, nil, errors.New(errors.KindValidation, "log_level is required")
		}
		return Response{}, nil, d.SetLogLevel(caller, *req.LogLevel)
	case OpEstablish:
		iface, err := d.Establish(caller)
		if err != nil {
			return Response{}, nil, err
		}
		return Response{
			Interface: iface.Name,
			FDFollows: iface.File != nil,
		}, iface.File, nil
	case OpDisable:
		return Response{}, nil, d.Disable(caller)
	case OpDestroy:
		return Response{}, nil, d.Destroy(caller)
	}

	// Unreachable: Valid() covered the full enum above.
	return Response{}, nil, errors.Errorf(errors.KindInternal, "unhandled operation %q", req.Op)
}

// authorize runs the daemon-wide caller check. Denials are counted for
// the authz metric; the device core logs and publishes its own denials
// for the owner tier.
func (s *Server) authorize(caller identity.Caller) error {
	if s.cfg.Policy == nil {
		return nil
	}
	if err := s.cfg.Policy.CheckCaller(caller); err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.AuthzDenialsTotal.Inc()
		}
		s.logger.Warn("caller rejected", "uid", caller.UID, "pid", caller.PID)
		return err
	}
	return nil
}

func (s *Server) status() *Status {
	st := &Status{
		Version: s.cfg.Version,
		PID:     os.Getpid(),
		Devices: make(map[string]int),
	}
	for _, d := range s.cfg.Registry.List() {
		st.Devices[d.State().String()]++
	}
	if s.cfg.Resolver != nil {
		st.ResolverBackend = s.cfg.Resolver.BackendName()
		st.ResolverRefs = s.cfg.Resolver.DeviceCount()
	}
	if s.cfg.Policy != nil {
		st.Enforcing = s.cfg.Policy.Enforcing()
	}
	return st
}
