// Command ocservd is the supervisor process for the ocserv
// session-lifecycle engine: it loads a configuration snapshot, wires
// the Environment Binder, Hook Runner, Accounting Writer and Registry
// together behind one Supervisor goroutine, and exposes the D-Bus
// control surface to an occtl-equivalent operator CLI.
//
// Session creation itself — authentication, address leasing, worker
// process spawning — is out of this engine's scope (spec.md §1); this
// binary only demonstrates wiring the pieces together and would, in a
// full ocserv build, be driven by calls from the TLS worker processes
// rather than by its own main loop.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ocserv/sessiond/control"
	"github.com/ocserv/sessiond/internal/config"
	"github.com/ocserv/sessiond/internal/reaper"
	"github.com/ocserv/sessiond/internal/sigset"
	"github.com/ocserv/sessiond/session"
)

type application struct {
	cfg    *config.Config
	logger log.Logger

	registry *session.Registry
	pending  *session.PendingHooks
	hooks    *session.HookRunner
	acct     *session.AccountingWriter
	reaper   *reaper.Reaper
	sup      *session.Supervisor
	ctl      *control.Service

	sigChan chan os.Signal
}

func newApplication(configPath string, verbose bool) (*application, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	logger := log.NewLogfmtLogger(os.Stderr)
	if verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	sigs := sigset.Default()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	r := reaper.New(sigs, logger)

	cfgRef := session.NewConfigRef(cfg.Session)
	registry := session.NewRegistry()
	pending := session.NewPendingHooks()
	hooks := session.NewHookRunner(cfgRef, pending, sigs, logger)
	acct := session.NewAccountingWriter(cfgRef, logger)
	sup := session.NewSupervisor(cfgRef, registry, pending, hooks, acct, r, logger)

	app := &application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		pending:  pending,
		hooks:    hooks,
		acct:     acct,
		reaper:   r,
		sup:      sup,
		sigChan:  sigChan,
	}

	// onReload reparses the configuration file and swaps it into cfgRef,
	// which hooks, acct and sup all already hold — so the new script
	// paths, routes and DNS take effect for the next operation each
	// performs, without rebuilding any of them (spec.md §6.2: "reload ...
	// causes config reparse on next quiescent point").
	onReload := func() error {
		next, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		app.cfg = next
		cfgRef.Store(next.Session)
		return nil
	}

	app.ctl = control.NewService(sup, onReload, app.requestShutdown, logger)
	return app, nil
}

func (app *application) requestShutdown() {
	select {
	case app.sigChan <- os.Interrupt:
	default:
	}
}

func (app *application) run() int {
	defer app.reaper.Close()

	if err := app.ctl.Start(); err != nil {
		level.Error(app.logger).Log("message", "failed to start control surface", "error", err)
		return 1
	}
	defer app.ctl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.sup.Run(ctx)
		close(done)
	}()

	<-app.sigChan
	level.Info(app.logger).Log("message", "received signal, shutting down")
	cancel()
	<-done

	return 0
}

func main() {
	cfgPathPtr := flag.String("config", "/etc/ocserv/sessiond.toml", "specify configuration file path")
	verbosePtr := flag.Bool("verbose", false, "toggle verbose log output")
	flag.Parse()

	app, err := newApplication(*cfgPathPtr, *verbosePtr)
	if err != nil {
		stdlog.Fatalf("failed to instantiate application: %v", err)
	}

	os.Exit(app.run())
}
