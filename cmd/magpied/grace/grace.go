// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package grace drives the daemon lifecycle: pid files, signal
// handling and graceful restarts that hand open sockets to a forked
// child so no connection is lost.
package grace

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const fdEnvPrefix = "MAGPIE_FD_"

// Watcher watches the process for a graceful restart,
// preserving open network sockets to avoid dropped requests.
type Watcher struct {
	log       zerolog.Logger
	graceful  bool
	ppid      int
	lns       map[string]net.Listener
	ss        []Server
	pidFile   string
	childPIDs []int
}

// Option configures a Watcher.
type Option func(w *Watcher)

// WithLogger adds a logger to the Watcher.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// WithPIDFile specifies the pid file to use.
func WithPIDFile(fn string) Option {
	return func(w *Watcher) {
		w.pidFile = fn
	}
}

// NewWatcher creates a Watcher.
func NewWatcher(opts ...Option) *Watcher {
	w := &Watcher{
		log:      zerolog.Nop(),
		graceful: os.Getenv("GRACEFUL") == "true",
		ppid:     os.Getppid(),
		ss:       make([]Server, 0),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Exit exits the current process cleaning up existing pid files.
func (w *Watcher) Exit(errc int) {
	w.Clean()
	os.Exit(errc)
}

// Clean cleans up existing pid files.
func (w *Watcher) Clean() {
	err := w.clean()
	if err != nil {
		w.log.Warn().Err(err).Msg("error removing pid file")
	} else {
		w.log.Info().Msgf("pid file %q got removed", w.pidFile)
	}
}

func (w *Watcher) clean() error {
	// only remove the pid file if it was written by this process;
	// a forked child may have overwritten it already.
	filePID, err := w.readPID()
	if err != nil {
		return err
	}

	if filePID != os.Getpid() {
		return fmt.Errorf("pid:%d in pidfile is different from pid:%d, leftover from a hard shutdown or a reload was triggered", filePID, os.Getpid())
	}

	return os.Remove(w.pidFile)
}

func (w *Watcher) readPID() (int, error) {
	piddata, err := os.ReadFile(w.pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(piddata))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// GetProcessFromFile reads the pidfile and returns the running process,
// or an error if the process or the file are not available.
func GetProcessFromFile(pfile string) (*os.Process, error) {
	data, err := os.ReadFile(pfile)
	if err != nil {
		return nil, err
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return nil, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}

	return process, nil
}

// WritePID writes the pid to the configured pid file.
func (w *Watcher) WritePID() error {
	if piddata, err := os.ReadFile(w.pidFile); err == nil {
		if pid, err := strconv.Atoi(string(piddata)); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				// a zero signal only checks the process exists.
				if err := process.Signal(syscall.Signal(0)); err == nil {
					if !w.graceful {
						return fmt.Errorf("pid already running: %d", pid)
					}

					if pid != w.ppid { // overwrite only if the pidfile holds our parent
						return fmt.Errorf("pid %d is not this process parent", pid)
					}
				} else {
					w.log.Warn().Err(err).Msg("error sending zero kill signal to current process")
				}
			} else {
				w.log.Warn().Msgf("pid:%d not found", pid)
			}
		} else {
			w.log.Warn().Msg("error casting contents of pidfile to pid(int)")
		}
	}

	// the pidfile did not exist, or we are in a graceful reload and
	// may overwrite the parent's entry.
	err := os.WriteFile(w.pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0664)
	if err != nil {
		return err
	}
	w.log.Info().Msgf("pidfile saved at: %s", w.pidFile)
	return nil
}

// inherited wraps a listener rebuilt from an inherited fd so that
// closing it also closes the duplicated file.
type inherited struct {
	f  *os.File
	ln net.Listener
}

func (i *inherited) Accept() (net.Conn, error) {
	return i.ln.Accept()
}

func (i *inherited) Close() error {
	if err := i.f.Close(); err != nil {
		return err
	}
	return i.ln.Close()
}

func (i *inherited) Addr() net.Addr {
	return i.ln.Addr()
}

func inheritedListeners() map[string]net.Listener {
	lns := make(map[string]net.Listener)
	for _, val := range os.Environ() {
		if strings.HasPrefix(val, fdEnvPrefix) {
			// the variable is of the form MAGPIE_FD_<svcname>=<fd>
			env := strings.TrimPrefix(val, fdEnvPrefix)
			s := strings.Split(env, "=")
			if len(s) != 2 {
				continue
			}
			svcname := strings.ToLower(s[0])
			fd, err := strconv.ParseUint(s[1], 10, 64)
			if err != nil {
				continue
			}
			f := os.NewFile(uintptr(fd), "")
			ln, err := net.FileListener(f)
			if err != nil {
				continue
			}
			lns[svcname] = &inherited{f: f, ln: ln}
		}
	}
	return lns
}

func isRandomAddress(addr string) bool {
	return addr == ""
}

func getAddress(addr string) string {
	if isRandomAddress(addr) {
		return ":0"
	}
	return addr
}

// Addressable is anything bound to a network address.
type Addressable interface {
	Network() string
	Address() string
}

// Server is the interface watched servers need to implement.
type Server interface {
	Start(net.Listener) error
	Stop() error
	GracefulStop() error
	Addressable
}

// SetServers registers the servers the watcher stops on signals.
func (w *Watcher) SetServers(s []Server) { w.ss = s }

// GetListeners returns a listener for each configured server, either
// inherited from a graceful parent or freshly bound.
func (w *Watcher) GetListeners(servers map[string]Addressable) (map[string]net.Listener, error) {
	lns := make(map[string]net.Listener)

	if w.graceful {
		w.log.Info().Msg("graceful restart, inheriting parent listener fds")

		inherited := inheritedListeners()
		for svc, ln := range inherited {
			addr, ok := servers[svc]
			if !ok {
				continue
			}
			if isRandomAddress(addr.Address()) || addressEqual(ln.Addr(), addr.Network(), getAddress(addr.Address())) {
				lns[svc] = ln
			}
		}

		// close inherited listeners the new configuration does not use.
		for svc, ln := range inherited {
			if _, ok := lns[svc]; !ok {
				if err := ln.Close(); err != nil {
					w.log.Error().Err(err).Msgf("error closing inherited listener %s", ln.Addr().String())
					return nil, errors.Wrap(err, "error closing inherited listener")
				}
			}
		}

		// bind fresh listeners for the services with nothing to inherit.
		for svc, addr := range servers {
			if _, ok := lns[svc]; ok {
				continue
			}
			a := getAddress(addr.Address())
			ln, err := net.Listen(addr.Network(), a)
			if err != nil {
				w.log.Error().Err(err).Msgf("error getting listener on %s", a)
				return nil, errors.Wrap(err, "error getting listener")
			}
			lns[svc] = ln
		}

		w.log.Info().Msgf("killing parent pid gracefully with SIGQUIT: %d", w.ppid)
		p, err := os.FindProcess(w.ppid)
		if err != nil {
			w.log.Error().Err(err).Msgf("error finding parent process with ppid:%d", w.ppid)
			return nil, errors.Wrap(err, "error finding parent process")
		}
		if err := p.Signal(syscall.SIGQUIT); err != nil {
			w.log.Error().Err(err).Msgf("error killing parent process with ppid:%d", w.ppid)
			return nil, errors.Wrap(err, "error killing parent process")
		}
		w.lns = lns
		return lns, nil
	}

	// no graceful
	for svc, s := range servers {
		network, addr := s.Network(), getAddress(s.Address())
		// multiple services may share one listener
		ln, ok := get(lns, addr, network)
		if ok {
			lns[svc] = ln
			continue
		}
		ln, err := net.Listen(network, addr)
		if err != nil {
			return nil, err
		}
		lns[svc] = ln
	}
	w.lns = lns
	return lns, nil
}

func get(lns map[string]net.Listener, address, network string) (net.Listener, bool) {
	for _, ln := range lns {
		if addressEqual(ln.Addr(), network, address) {
			return ln, true
		}
	}
	return nil, false
}

func addressEqual(a net.Addr, network, address string) bool {
	if a.Network() != network {
		return false
	}

	switch network {
	case "tcp":
		t, err := net.ResolveTCPAddr(network, address)
		if err != nil {
			return false
		}
		return a.(*net.TCPAddr).Port == t.Port
	case "unix":
		t, err := net.ResolveUnixAddr(network, address)
		if err != nil {
			return false
		}
		u := a.(*net.UnixAddr)
		return u.Name == t.Name && u.Net == t.Net
	}
	return false
}

// TrapSignals blocks handling OS signals: SIGHUP forks a child that
// inherits the listeners, SIGQUIT drains with a 10 second deadline and
// SIGINT/SIGTERM stop the servers abruptly.
func (w *Watcher) TrapSignals() {
	signalCh := make(chan os.Signal, 1024)
	signal.Notify(signalCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for {
		s := <-signalCh
		w.log.Info().Msgf("%v signal received", s)

		switch s {
		case syscall.SIGHUP:
			w.log.Info().Msg("preparing for a hot-reload, forking child process...")

			p, err := forkChild(w.lns)
			if err != nil {
				w.log.Error().Err(err).Msg("unable to fork child process")
			} else {
				w.log.Info().Msgf("child forked with new pid %d", p.Pid)
				w.childPIDs = append(w.childPIDs, p.Pid)
			}

		case syscall.SIGQUIT:
			w.log.Info().Msg("preparing for a graceful shutdown with deadline of 10 seconds")
			go func() {
				count := 10
				ticker := time.NewTicker(time.Second)
				for ; true; <-ticker.C {
					w.log.Info().Msgf("shutting down in %d seconds", count-1)
					count--
					if count <= 0 {
						w.log.Info().Msg("deadline reached before draining active conns, hard stopping ...")
						for _, s := range w.ss {
							if err := s.Stop(); err != nil {
								w.log.Error().Err(err).Msg("error stopping server")
							}
							w.log.Info().Msgf("fd to %s:%s abruptly closed", s.Network(), s.Address())
						}
						w.Exit(1)
					}
				}
			}()
			for _, s := range w.ss {
				w.log.Info().Msgf("fd to %s:%s gracefully closed", s.Network(), s.Address())
				if err := s.GracefulStop(); err != nil {
					w.log.Error().Err(err).Msg("error stopping server")
					w.Exit(1)
				}
			}
			w.Exit(0)

		case syscall.SIGINT, syscall.SIGTERM:
			w.log.Info().Msg("preparing for hard shutdown, aborting all conns")
			for _, s := range w.ss {
				w.log.Info().Msgf("fd to %s:%s abruptly closed", s.Network(), s.Address())
				if err := s.Stop(); err != nil {
					w.log.Error().Err(err).Msg("error stopping server")
				}
			}
			w.Exit(0)
		}
	}
}

func getListenerFile(ln net.Listener) (*os.File, error) {
	switch t := ln.(type) {
	case *inherited:
		return t.f, nil
	case *net.TCPListener:
		return t.File()
	case *net.UnixListener:
		return t.File()
	}
	return nil, fmt.Errorf("unsupported listener: %T", ln)
}

func forkChild(lns map[string]net.Listener) (*os.Process, error) {
	// grab the fd behind each listener so the child can rebuild it.
	fds := make(map[string]*os.File)
	for name, ln := range lns {
		fd, err := getListenerFile(ln)
		if err != nil {
			return nil, err
		}
		fds[name] = fd
	}

	// pass stdin, stdout and stderr along with the listener files.
	files := []*os.File{
		os.Stdin,
		os.Stdout,
		os.Stderr,
	}

	environment := append(os.Environ(), "GRACEFUL=true")
	counter := 3
	for k, fd := range fds {
		k = strings.ToUpper(k)
		environment = append(environment, fmt.Sprintf("%s%s=%d", fdEnvPrefix, k, counter))
		files = append(files, fd)
		counter++
	}

	execName, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execDir := filepath.Dir(execName)

	p, err := os.StartProcess(execName, os.Args, &os.ProcAttr{
		Dir:   execDir,
		Env:   environment,
		Files: files,
		Sys:   &syscall.SysProcAttr{},
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}
