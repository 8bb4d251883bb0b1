// Command dnstunnel runs the client-side session layer of a
// dnscat2-style tunnel, wired to a loopback transport and a console
// I/O driver.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/config"
	"github.com/dnscat2go/dnstunnel/internal/ioclient"
	"github.com/dnscat2go/dnstunnel/internal/metrics"
	"github.com/dnscat2go/dnstunnel/internal/packet"
	"github.com/dnscat2go/dnstunnel/internal/pump"
	"github.com/dnscat2go/dnstunnel/internal/session"
	"github.com/dnscat2go/dnstunnel/internal/transport"
)

func main() {
	runID := xid.New().String()

	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	log := base.WithField("run_id", runID)

	opts, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid flags")
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(signalCtx, runID, log, opts)
	if err != nil {
		log.WithError(err).Error("dnstunnel exited with an error")
		os.Exit(1)
	}
	os.Exit(code)
}

// run wires the bus, engine, drivers and metrics together and blocks
// until the session layer finishes (graceful SHUTDOWN drain, or a
// process-fatal condition) or ctx's Drain goroutines otherwise exit.
// It returns the process exit code the session layer would have
// passed to os.Exit, so tests can observe it without the function
// ever calling os.Exit itself (spec.md §9's design note: WithExit is
// how process-fatal conditions are made observable).
func run(signalCtx context.Context, runID string, log logrus.FieldLogger, opts config.Options) (int, error) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, runID)

	// hardCtx governs every goroutine's lifetime, including the bus
	// dispatcher itself. It's canceled by the engine's exit hook, once
	// the graceful drain completes or a process-fatal condition fires.
	hardCtx, hardCancel := context.WithCancel(context.Background())
	defer hardCancel()

	var (
		exitOnce sync.Once
		exitCode int
	)
	finish := func(code int) {
		exitOnce.Do(func() {
			exitCode = code
			hardCancel()
		})
	}

	b := bus.New()
	engine := session.NewEngine(b, packet.ReferenceCodec{}, m, log,
		session.WithExit(finish),
	)

	// The dispatcher goroutine below is the only goroutine that ever
	// calls b.Post; every other goroutine posts through inbox (spec.md
	// §5's single-writer requirement for a Bus that isn't itself
	// concurrency-safe).
	inbox := make(bus.ChannelPoster, 256)

	config.PostConfig(inbox, opts)
	sessionID := engine.CreateSession(opts.SessionName, opts.Download, 0, opts.IsCommand)

	hb := pump.New(inbox, opts.HeartbeatPeriod, log)
	tr := transport.NewLoopback(inbox, log)
	b.Subscribe(bus.PacketOut, tr.PacketOutHandler())
	console := ioclient.New(sessionID, opts.Download, inbox, os.Stdin, os.Stdout, log)
	b.Subscribe(bus.DataIn, console.DataInHandler())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: opts.MetricsAddr, Handler: mux}

	g, gctx := errgroup.WithContext(hardCtx)
	g.Go(func() error { b.Drain(gctx, inbox); return nil })
	g.Go(func() error { hb.Run(gctx); return nil })
	g.Go(func() error { tr.Run(gctx); return nil })
	g.Go(func() error { console.Run(gctx); return nil })
	g.Go(func() error { return serveMetrics(gctx, metricsServer, log) })

	// Watch for the first signal: ask the session layer to shut down
	// gracefully rather than cutting goroutines off immediately. The
	// heartbeat pump keeps ticking (it only stops at hardCtx) so the
	// registry gets a chance to drain via reapSession before the
	// engine's own exit hook calls finish(0).
	g.Go(func() error {
		select {
		case <-signalCtx.Done():
			log.Info("signal received, starting graceful shutdown")
			inbox.Post(bus.ShutdownMsg{})
		case <-gctx.Done():
		}
		return nil
	})

	err := g.Wait()
	return exitCode, err
}

// serveMetrics runs srv until ctx is canceled, then shuts it down
// gracefully, matching exporter_example2's promhttp.Handler wiring but
// with a cancelable lifetime instead of a bare ListenAndServe.
func serveMetrics(ctx context.Context, srv *http.Server, log logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
