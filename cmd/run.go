package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/encodeous/routesim/core"
	"github.com/encodeous/routesim/perf"
	"github.com/encodeous/routesim/state"
	"github.com/spf13/cobra"
)

var (
	protocol    string
	logPath     string
	metricsAddr string
	showTrace   bool
	skipEvents  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Converges every router of the topology, prints the routing tables, then applies each
configured link event in order and re-converges after each one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if protocol != "dv" && protocol != "ls" && protocol != "both" {
			return fmt.Errorf("unknown protocol %q, expected dv, ls or both", protocol)
		}
		logger, closeLog, err := newLogger(slogLevel(cmd), logPath)
		if err != nil {
			return err
		}
		defer closeLog()

		cfg, err := state.LoadTopologyCfg(configPath)
		if err != nil {
			return err
		}
		topo, err := core.TopologyFromConfig(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := core.OptionsFromConfig(cfg.Simulation)
		opts.Log = logger
		opts.Registry = perf.NewRegistry()
		if showTrace {
			opts.Trace = core.NewTrace()
			defer stopTrace(opts.Trace, cmd.ErrOrStderr())()
		}
		if metricsAddr != "" {
			defer serveMetrics(metricsAddr, opts.Registry, logger)()
		}

		sim := core.NewSimulation(topo, opts)
		if err := sim.Start(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		err = simulate(ctx, sim, cfg.Events, out)
		if stopErr := sim.Stop(); err == nil {
			err = stopErr
		}
		return err
	},
	GroupID: "sim",
}

func simulate(ctx context.Context, sim *core.Simulation, events []state.EventCfg, out io.Writer) error {
	if err := converge(ctx, sim, out, "initial"); err != nil {
		return err
	}
	if !skipEvents {
		for _, ev := range events {
			if err := sim.SetLinkStatus(ctx, ev.From, ev.To, ev.Status); err != nil {
				return err
			}
			if err := converge(ctx, sim, out, fmt.Sprintf("after %s - %s %s", ev.From, ev.To, ev.Status)); err != nil {
				return err
			}
		}
	}
	stats, err := sim.Stats(ctx)
	if err != nil {
		return err
	}
	return printStats(out, stats)
}

func converge(ctx context.Context, sim *core.Simulation, out io.Writer, stage string) error {
	if protocol != "ls" {
		res, err := sim.ConvergeDistanceVector(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "distance-vector converged in %d rounds (%s)\n", res.Rounds, res.Duration.Round(time.Microsecond))
	}
	if protocol != "dv" {
		if err := sim.ConvergeLinkState(ctx); err != nil {
			return err
		}
	}
	tables, err := sim.RoutingTables(ctx)
	if err != nil {
		return err
	}
	if protocol != "ls" {
		if err := printTables(out, "distance-vector, "+stage, tables.DistanceVector); err != nil {
			return err
		}
	}
	if protocol != "dv" {
		if err := printTables(out, "link-state, "+stage, tables.LinkState); err != nil {
			return err
		}
	}
	if protocol == "both" {
		if bad := disagreements(tables); len(bad) > 0 {
			fmt.Fprintf(out, "protocols disagree on routers %v\n", bad)
		} else {
			fmt.Fprintln(out, "protocols agree")
		}
	}
	return nil
}

// stopTrace prints trace events until the returned function is called.
func stopTrace(tr *core.Trace, w io.Writer) func() {
	ch, unsubscribe := tr.Subscribe()
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case msg := <-ch:
				fmt.Fprintln(w, msg)
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
		unsubscribe()
		_ = tr.Close()
	}
}

// serveMetrics exposes prometheus metrics on /metrics and the live
// histograms on /debug/metrics until the returned function is called.
func serveMetrics(addr string, reg *perf.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/debug/", http.DefaultServeMux)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVarP(&protocol, "protocol", "p", "both", "Protocols to converge: dv, ls or both")
	runCmd.Flags().StringVar(&logPath, "log-path", "", "Also write logs to this file")
	runCmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "m", "", "Serve metrics on this address while running")
	runCmd.Flags().BoolVarP(&showTrace, "trace", "t", false, "Print every router event")
	runCmd.Flags().BoolVar(&skipEvents, "skip-events", false, "Do not apply the configured link events")
}
