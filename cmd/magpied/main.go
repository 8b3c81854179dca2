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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DACCS-Climate/Magpie/cmd/magpied/grace"
	"github.com/DACCS-Climate/Magpie/internal/http/interceptors/appctx"
	"github.com/DACCS-Climate/Magpie/internal/http/interceptors/auth"
	httplog "github.com/DACCS-Climate/Magpie/internal/http/interceptors/log"
	"github.com/DACCS-Climate/Magpie/pkg/logger"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
)

var (
	versionFlag = flag.Bool("version", false, "show version and exit")
	testFlag    = flag.Bool("t", false, "test configuration and exit")
	signalFlag  = flag.String("s", "", "send signal to a master process: stop, quit, reload")
	configFlag  = flag.String("c", "/etc/magpie/magpied.toml", "set configuration file")
	pidFlag     = flag.String("p", "/var/run/magpied.pid", "pid file")

	// Compile time variables initialized with ldflags.
	gitCommit, buildDate, version, goVersion string
)

func main() {
	flag.Parse()

	handleVersionFlag()
	handleSignalFlag()

	mainConf := handleConfigFlagOrDie()
	coreConf := parseCoreConfOrDie(mainConf["core"])
	logConf := parseLogConfOrDie(mainConf["log"])

	if err := sharedconf.Decode(section(mainConf, "shared")); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding shared config: %v\n", err)
		os.Exit(1)
	}

	handleTestFlag()

	log, err := newLogger(logConf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error creating logger, exiting ...")
		os.Exit(1)
	}

	watcher, err := handlePIDFlag(log)
	if err != nil {
		log.Error().Err(err).Msg("error creating grace watcher")
		os.Exit(1)
	}

	ncpus, err := adjustCPU(coreConf.MaxCPUs)
	if err != nil {
		log.Error().Err(err).Msg("error adjusting number of cpus")
		watcher.Exit(1)
	}
	log.Info().Msgf("running on %d cpus", ncpus)

	if err := bootstrap(context.Background(), mainConf, log); err != nil {
		log.Error().Err(err).Msg("error bootstrapping the stores")
		watcher.Exit(1)
	}

	httpConf := parseHTTPConfOrDie(mainConf["http"])
	server, err := newHTTPServer(httpConf, log)
	if err != nil {
		log.Error().Err(err).Msg("error creating http server")
		watcher.Exit(1)
	}

	listeners, err := watcher.GetListeners(map[string]grace.Addressable{
		"http": &addr{network: httpConf.Network, address: httpConf.Address},
	})
	if err != nil {
		log.Error().Err(err).Msg("error getting sockets")
		watcher.Exit(1)
	}

	watcher.SetServers([]grace.Server{server})

	var g errgroup.Group
	g.Go(func() error {
		return server.Start(listeners["http"])
	})
	go func() {
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Msg("error running the http server")
			watcher.Exit(1)
		}
	}()

	// wait for signal to close the server
	watcher.TrapSignals()
}

// addr carries the configured coordinates so listeners can be bound
// before the server holds them.
type addr struct {
	network, address string
}

func (a *addr) Network() string { return a.network }
func (a *addr) Address() string { return a.address }

type httpConf struct {
	Network     string                            `mapstructure:"network"`
	Address     string                            `mapstructure:"address"`
	CertFile    string                            `mapstructure:"certfile"`
	KeyFile     string                            `mapstructure:"keyfile"`
	Services    map[string]map[string]interface{} `mapstructure:"services"`
	Middlewares map[string]map[string]interface{} `mapstructure:"middlewares"`
}

func newHTTPServer(c *httpConf, log *zerolog.Logger) (*rhttp.Server, error) {
	services, err := rhttp.InitServices(c.Services, log)
	if err != nil {
		return nil, err
	}

	middlewares, err := initHTTPMiddlewares(c.Middlewares, rhttp.Unprotected(services), log)
	if err != nil {
		return nil, err
	}

	s, err := rhttp.New(
		rhttp.WithServices(services),
		rhttp.WithMiddlewares(middlewares),
		rhttp.WithLogger(log.With().Str("pkg", "rhttp").Logger()),
		rhttp.WithCertAndKeyFiles(c.CertFile, c.KeyFile),
	)
	if err != nil {
		return nil, errors.Wrap(err, "main: error creating http server")
	}
	return s, nil
}

// middlewareTriple represents a middleware with the
// priority to be chained.
type middlewareTriple struct {
	Name       string
	Priority   int
	Middleware global.Middleware
}

func initHTTPMiddlewares(conf map[string]map[string]interface{}, unprotected []string, log *zerolog.Logger) ([]global.Middleware, error) {
	triples := []*middlewareTriple{}
	for name, c := range conf {
		if name == "auth" {
			continue
		}
		new, ok := global.NewMiddlewares[name]
		if !ok {
			return nil, fmt.Errorf("http middleware %s does not exist", name)
		}
		m, prio, err := new(c)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating new middleware: %s", name)
		}
		triples = append(triples, &middlewareTriple{
			Name:       name,
			Priority:   prio,
			Middleware: m,
		})
		log.Info().Msgf("http middleware enabled: %s with priority %d", name, prio)
	}

	sort.SliceStable(triples, func(i, j int) bool {
		return triples[i].Priority < triples[j].Priority
	})

	authMiddle, err := auth.New(conf["auth"], unprotected)
	if err != nil {
		return nil, errors.Wrap(err, "error creating auth middleware")
	}

	// the server wraps the handler in slice order and the first entry
	// ends up innermost: auth guards routing, the configured
	// middlewares stack outside it by rising priority, and appctx tops
	// the chain so every layer below logs with the request id.
	middlewares := []global.Middleware{authMiddle}
	for _, t := range triples {
		middlewares = append(middlewares, t.Middleware)
	}
	middlewares = append(middlewares, httplog.New(), appctx.New(*log))
	return middlewares, nil
}

func newLogger(conf *logConf) (*zerolog.Logger, error) {
	var opts []logger.Option
	opts = append(opts, logger.WithLevel(conf.Level))

	w, err := getWriter(conf.Output)
	if err != nil {
		return nil, err
	}

	opts = append(opts, logger.WithWriter(w, logger.Mode(conf.Mode)))

	l := logger.New(opts...)
	sub := l.With().Int("pid", os.Getpid()).Logger()
	return &sub, nil
}

func getWriter(out string) (io.Writer, error) {
	if out == "stderr" || out == "" {
		return os.Stderr, nil
	}

	if out == "stdout" {
		return os.Stdout, nil
	}

	fd, err := os.Create(out)
	if err != nil {
		err = errors.Wrap(err, "error creating log file")
		return nil, err
	}

	return fd, nil
}

func handleVersionFlag() {
	if *versionFlag {
		msg := "version=%s "
		msg += "commit=%s "
		msg += "go_version=%s "
		msg += "build_date=%s\n"

		fmt.Fprintf(os.Stderr, msg, version, gitCommit, goVersion, buildDate)
		os.Exit(1)
	}
}

func handleSignalFlag() {
	if *signalFlag != "" {
		var signal syscall.Signal
		switch *signalFlag {
		case "reload":
			signal = syscall.SIGHUP
		case "quit":
			signal = syscall.SIGQUIT
		case "stop":
			signal = syscall.SIGTERM
		default:
			fmt.Fprintf(os.Stderr, "unknown signal %q\n", *signalFlag)
			os.Exit(1)
		}

		process, err := grace.GetProcessFromFile(*pidFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error getting process from pidfile: %v\n", err)
			os.Exit(1)
		}

		// kill process with signal
		if err := process.Signal(signal); err != nil {
			fmt.Fprintf(os.Stderr, "error signaling process %d with signal %s\n", process.Pid, signal)
			os.Exit(1)
		}

		os.Exit(0)
	}
}

func handleTestFlag() {
	if *testFlag {
		fmt.Fprintln(os.Stderr, "configuration OK")
		os.Exit(0)
	}
}

func handlePIDFlag(l *zerolog.Logger) (*grace.Watcher, error) {
	var opts []grace.Option
	opts = append(opts, grace.WithPIDFile(*pidFlag))
	opts = append(opts, grace.WithLogger(l.With().Str("pkg", "grace").Logger()))

	w := grace.NewWatcher(opts...)
	err := w.WritePID()
	if err != nil {
		return nil, err
	}

	return w, nil
}

func handleConfigFlagOrDie() map[string]interface{} {
	fd, err := os.Open(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening file: %+v\n", err)
		os.Exit(1)
	}
	defer fd.Close()

	var v map[string]interface{}
	if _, err := toml.NewDecoder(fd).Decode(&v); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %+v\n", err)
		os.Exit(1)
	}

	return v
}

// adjustCPU parses string cpu and sets GOMAXPROCS
// according to its value. It accepts either
// a number (e.g. 3) or a percent (e.g. 50%).
func adjustCPU(cpu string) (int, error) {
	var numCPU int

	availCPU := runtime.NumCPU()

	if cpu != "" {
		if strings.HasSuffix(cpu, "%") {
			// Percent
			var percent float32
			pctStr := cpu[:len(cpu)-1]
			pctInt, err := strconv.Atoi(pctStr)
			if err != nil || pctInt < 1 || pctInt > 100 {
				return 0, fmt.Errorf("invalid CPU value: percentage must be between 1-100")
			}
			percent = float32(pctInt) / 100
			numCPU = int(float32(availCPU) * percent)
		} else {
			// Number
			num, err := strconv.Atoi(cpu)
			if err != nil || num < 1 {
				return 0, fmt.Errorf("invalid CPU value: provide a number or percent greater than 0")
			}
			numCPU = num
		}
	}

	if numCPU > availCPU || numCPU == 0 {
		numCPU = availCPU
	}

	runtime.GOMAXPROCS(numCPU)
	return numCPU, nil
}

func parseCoreConfOrDie(v interface{}) *coreConf {
	c := &coreConf{}
	if err := mapstructure.Decode(v, c); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding core config: %s\n", err)
		os.Exit(1)
	}
	return c
}

type coreConf struct {
	MaxCPUs string `mapstructure:"max_cpus"`
}

func parseLogConfOrDie(v interface{}) *logConf {
	c := &logConf{}
	if err := mapstructure.Decode(v, c); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding log config: %s\n", err)
		os.Exit(1)
	}
	return c
}

type logConf struct {
	Output string `mapstructure:"output"`
	Mode   string `mapstructure:"mode"`
	Level  string `mapstructure:"level"`
}

func parseHTTPConfOrDie(v interface{}) *httpConf {
	c := &httpConf{}
	if err := mapstructure.Decode(v, c); err != nil {
		fmt.Fprintf(os.Stderr, "error decoding http config: %s\n", err)
		os.Exit(1)
	}
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Address == "" {
		c.Address = "0.0.0.0:2001"
	}
	return c
}

func section(conf map[string]interface{}, key string) map[string]interface{} {
	if s, ok := conf[key].(map[string]interface{}); ok {
		return s
	}
	return map[string]interface{}{}
}
