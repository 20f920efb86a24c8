package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marscolony/airlock-go/cmd/airlockd/console"
	"github.com/marscolony/airlock-go/internal/logging"
	"github.com/marscolony/airlock-go/pkg/diag"
	"github.com/marscolony/airlock-go/pkg/log"
	"github.com/marscolony/airlock-go/pkg/metrics"
	"github.com/marscolony/airlock-go/pkg/panel"
	"github.com/marscolony/airlock-go/pkg/sim"
	"github.com/marscolony/airlock-go/pkg/subsystem"
	"github.com/marscolony/airlock-go/pkg/supervisor"
	"github.com/marscolony/airlock-go/pkg/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the airlock control loop",
	Long: `Starts one worker per actuator subsystem and runs the supervisor cycle
until SIGINT or SIGTERM. With --simulate every actuator is served by the
plant simulator; with --interactive the operator panel is driven from a
console prompt.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.Bool("simulate", false, "Run against the simulated plant instead of hardware")
	f.BoolP("interactive", "i", false, "Drive the operator panel from an interactive console")
	f.String("metrics-addr", "", "Listen address for /status, /healthz and /metrics (overrides config)")
	f.String("trace", "", "Write a CBOR trace of frames, requests and transitions to this file")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	interactive, _ := cmd.Flags().GetBool("interactive")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		board  = panel.NewSwitchboard()
		sup    *supervisor.Supervisor
		con    *console.Console
		logOut io.Writer = os.Stderr
	)
	if interactive {
		con, err = console.New(board, console.ReporterFunc(func() supervisor.Report { return sup.Report() }))
		if err != nil {
			return err
		}
		logOut = con.Stderr()
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.NewWriter(logOut, level)
	runID := uuid.NewString()

	trace, closeTrace, err := openTrace(cfg.Log.Trace, logger, level)
	if err != nil {
		return err
	}
	defer closeTrace()

	m := metrics.New()
	plant := sim.New(sim.Config{
		PressureRate: cfg.Simulate.PressureRate,
		DoorRate:     cfg.Simulate.DoorRate,
		Logger:       logger,
	})

	dialer := transport.NewDialer()
	dialer.Register(sim.Scheme, plant.Open)
	open := transport.Opener(dialer.Open)
	if !cfg.Simulate.Enabled {
		logger.Warn("no sensor driver configured, readings are estimated from the plant model")
		open = shadow(dialer.Open, plant, cfg.Endpoints())
	}

	pool := subsystem.NewPool(logger)
	cfgs := supervisor.SubsystemConfigs(cfg.Endpoints(), supervisor.Worker{
		Period:   cfg.Worker.Period,
		Backoff:  cfg.Worker.Backoff,
		Observer: m,
	})
	for i := range cfgs {
		cfgs[i].Logger = logger
		cfgs[i].Trace = trace
		cfgs[i].RunID = runID
	}
	if failed := subsystem.Launch(ctx, pool, cfgs, open); pool.Len() == 0 {
		errs := make([]error, len(failed))
		for i, f := range failed {
			errs[i] = f
		}
		return fmt.Errorf("no subsystem could be started: %w", errors.Join(errs...))
	}

	sup, err = supervisor.New(supervisor.Config{
		Pool:       pool,
		Panel:      board,
		Sensor:     plant,
		Sink:       panel.NewLogSink(logger),
		Targets:    cfg.PressureTargets(),
		Angles:     cfg.DoorAngles(),
		LightLevel: cfg.Light.Level,
		Period:     cfg.CyclePeriod,
		Watchdog:   cfg.WatchdogConfig(),
		Metrics:    m,
		Trace:      trace,
		RunID:      runID,
		Logger:     logger,
	})
	if err != nil {
		_ = pool.StopAll(context.Background())
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := diag.NewServer(diag.ServerConfig{
			Addr:    cfg.Metrics.Addr,
			Version: Version,
			Pool:    pool,
			Report:  func() any { return sup.Report() },
			Metrics: m.Handler(),
			Logger:  logger,
		})
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error("diagnostics server failed", "error", err)
			}
		}()
	}

	if con != nil {
		go con.Run(ctx, cancel)
	}

	logger.Info("airlockd running",
		"run_id", runID,
		"simulate", cfg.Simulate.Enabled,
		"subsystems", pool.Names(),
		"cycle", cfg.CyclePeriod)
	return sup.Run(ctx)
}

// openTrace opens the trace file, if any. At debug level trace events are
// also written to the operational log.
func openTrace(path string, logger *slog.Logger, level slog.Level) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open trace file: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("trace events dropped", "count", n)
			}
			_ = fl.Close()
		}
	}
	if level <= slog.LevelDebug {
		// Subsystems already log each frame at debug level.
		sinks = append(sinks, log.Excluding(log.NewSlogAdapter(logger), log.LayerLink))
	}
	return log.Tee(sinks...), closeFn, nil
}

// shadow opens hardware links and mirrors every transmitted frame into the
// plant model, which then stands in for the chamber sensors.
func shadow(open transport.Opener, plant *sim.Plant, endpoints map[string]string) transport.Opener {
	names := make(map[string]string, len(endpoints))
	for name, ep := range endpoints {
		names[ep] = name
	}
	return func(ctx context.Context, endpoint string) (transport.Link, error) {
		link, err := open(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		name, ok := names[endpoint]
		if !ok {
			return link, nil
		}
		mirror, err := plant.Open(ctx, sim.Scheme+":"+name)
		if err != nil {
			return link, nil
		}
		return &teeLink{Link: link, mirror: mirror}, nil
	}
}

type teeLink struct {
	transport.Link
	mirror transport.Link
}

func (t *teeLink) Transmit(frame []byte) error {
	if err := t.Link.Transmit(frame); err != nil {
		return err
	}
	_ = t.mirror.Transmit(frame)
	return nil
}

func (t *teeLink) Close() error {
	_ = t.mirror.Close()
	return t.Link.Close()
}
