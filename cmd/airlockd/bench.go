package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marscolony/airlock-go/internal/logging"
	"github.com/marscolony/airlock-go/pkg/sim"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Serve simulated actuator controllers over TCP",
	Long: `Serves the plant simulator as networked actuator controllers, one listen
address per actuator. A controller started without --simulate can reach them
through tcp: endpoints. Every frame is acknowledged, and every apply is
followed by a status report of the simulated value.`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	f := benchCmd.Flags()
	f.String("pressure", "127.0.0.1:7401", "Listen address of the pressure valves (empty disables)")
	f.String("door", "127.0.0.1:7402", "Listen address of the door drive (empty disables)")
	f.String("light", "127.0.0.1:7403", "Listen address of the lights (empty disables)")
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	listeners := make(map[string]net.Listener)
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()
	for _, name := range []string{sim.Pressure, sim.Door, sim.Light} {
		addr, _ := cmd.Flags().GetString(name)
		if addr == "" {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", name, err)
		}
		listeners[name] = ln
		fmt.Fprintf(cmd.OutOrStdout(), "%-9s tcp:%s\n", name, ln.Addr())
	}
	if len(listeners) == 0 {
		return errors.New("no actuator to serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plant := sim.New(sim.Config{
		PressureRate: cfg.Simulate.PressureRate,
		DoorRate:     cfg.Simulate.DoorRate,
		Logger:       logger,
	})
	return serveBench(ctx, plant, listeners, logger)
}

// serveBench serves each listener until ctx is done. Serve closes the
// listeners.
func serveBench(ctx context.Context, plant *sim.Plant, listeners map[string]net.Listener, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name, ln := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := plant.Serve(ctx, ln, name); err != nil {
				logger.Error("actuator server failed", "actuator", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
