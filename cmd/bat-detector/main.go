// Command bat-detector counts bursts of ultrasonic clicks on GPIO detector
// inputs and prints one CSV line per burst: pin,clicks,duration.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/bat-detector/internal/config"
	"github.com/sweeney/bat-detector/internal/detector"
	"github.com/sweeney/bat-detector/internal/dispatch"
	"github.com/sweeney/bat-detector/internal/gpio"
	"github.com/sweeney/bat-detector/internal/logic"
	"github.com/sweeney/bat-detector/internal/metrics"
	"github.com/sweeney/bat-detector/internal/queue"
	"github.com/sweeney/bat-detector/internal/report"
	"github.com/sweeney/bat-detector/internal/status"
)

func main() {
	cmd, err := newRootCommand()
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// flagKeys maps command line flags to their config keys.
var flagKeys = map[string]string{
	"chip":           "chip",
	"quiet-ticks":    "quiet_ticks",
	"queue-capacity": "queue_capacity",
	"activity-pin":   "activity_pin",
	"heartbeat":      "heartbeat",
	"metrics-file":   "metrics_file",
}

func newRootCommand() (*cobra.Command, error) {
	v := viper.New()
	var (
		configFile string
		detectors  []string
		printState bool
	)

	cmd := &cobra.Command{
		Use:          "bat-detector",
		Short:        "Count ultrasonic click bursts on GPIO detector inputs",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile, detectors)
			if err != nil {
				return err
			}
			return run(cfg, printState)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "YAML config file")
	flags.String("chip", gpio.DefaultChip, "GPIO character device")
	flags.Uint32("quiet-ticks", config.DefaultQuietTicks, "Gap in µs ticks that closes a burst")
	flags.Int("queue-capacity", 0, "Edge queue capacity (0 for unbounded)")
	flags.Int("activity-pin", gpio.DefaultPinBlueLED, "BCM pin toggled on every edge (-1 to disable)")
	flags.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flags.String("metrics-file", "", "Prometheus textfile to rewrite on each heartbeat (empty to disable)")
	flags.StringSliceVar(&detectors, "detector", nil, "Detector as pin[:led[:quiet]], repeatable; replaces the configured list")
	flags.BoolVar(&printState, "print-state", false, "Print current input levels and exit")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return cmd, nil
}

func run(cfg config.Config, printState bool) error {
	chip, err := gpio.NewRealChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := chip.Close(); err != nil {
			log.Printf("gpio close: %v", err)
		}
	}()

	if printState {
		return printLevels(os.Stdout, chip, cfg.Pins())
	}

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runDetector(cfg, chip, os.Stdout, heartbeat, sigCh)
}

func printLevels(w io.Writer, chip gpio.Chip, pins []int) error {
	for _, pin := range pins {
		level, err := chip.Read(pin)
		if err != nil {
			return fmt.Errorf("read pin %d: %w", pin, err)
		}
		fmt.Fprintf(w, "pin=%d level=%d\n", pin, level)
	}
	return nil
}

// runDetector wires the pipeline onto chip and runs it until a signal
// arrives or the dispatch loop fails. Bursts are written to out as CSV.
func runDetector(cfg config.Config, chip gpio.Chip, out io.Writer, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	start := time.Now()

	for _, pin := range cfg.Outputs() {
		if err := chip.Write(pin, 0); err != nil {
			return fmt.Errorf("clear indicator pin %d: %w", pin, err)
		}
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}
	q := queue.New(cfg.QueueCapacity)
	tracker := status.NewTracker(start, status.Config{
		Chip:          cfg.Chip,
		QuietTicks:    cfg.QuietTicks,
		QueueCapacity: cfg.QueueCapacity,
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Pins:          cfg.Pins(),
	})

	loop := dispatch.New(q, chip, report.Multi{report.NewCSV(out), tracker, m})
	for _, d := range cfg.Detectors {
		if err := loop.Register(logic.NewAggregator(d.Pin, cfg.Quiet(d)), d.LEDPin); err != nil {
			return err
		}
	}

	var sources []*detector.Source
	cancelSources := func() {
		for _, s := range sources {
			if err := s.Cancel(); err != nil {
				log.Printf("shutdown: %v", err)
			}
		}
	}
	for _, d := range cfg.Detectors {
		edges, dropped := m.PinCounters(d.Pin)
		s, err := detector.Start(chip, d.Pin, q,
			detector.WithIndicator(cfg.ActivityPin),
			detector.WithCounters(edges, dropped),
		)
		if err != nil {
			cancelSources()
			return err
		}
		sources = append(sources, s)
	}

	refresh := func() status.Snapshot {
		tracker.SetQueue(q.Len(), q.Dropped())
		m.SetQueueDepth(q.Len())
		if cfg.MetricsFile != "" {
			if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
				log.Printf("metrics: %v", err)
			}
		}
		return tracker.Snapshot()
	}

	log.Printf("started: chip=%s pins=%v quiet=%d queue=%d heartbeat=%v",
		cfg.Chip, cfg.Pins(), cfg.QuietTicks, cfg.QueueCapacity, cfg.Heartbeat)
	log.Printf("startup: %s", status.FormatStatusEvent(refresh(), "STARTUP"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()

	var runErr error
	loopDone := false
wait:
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			break wait

		case err := <-loopErr:
			// Run only returns early on a routing fault
			runErr = err
			loopDone = true
			break wait

		case <-heartbeat:
			snap := refresh()
			log.Printf("heartbeat: uptime=%v queue=%d dropped=%d bursts=%d %s",
				snap.Uptime().Truncate(time.Second), snap.QueueDepth, snap.Dropped, snap.TotalBursts(), pinTotals(snap))
		}
	}

	cancelSources()
	cancel()
	if !loopDone {
		runErr = <-loopErr
	}

	n, err := loop.Drain()
	if err != nil {
		log.Printf("shutdown: drain: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	log.Printf("shutdown: drained %d records", n)

	for _, b := range loop.Pending() {
		log.Printf("shutdown: discarding open burst pin=%d clicks=%d duration=%d", b.Pin, b.Clicks, b.Duration)
	}

	for _, pin := range cfg.Outputs() {
		if err := chip.Write(pin, 0); err != nil {
			log.Printf("shutdown: clear indicator pin %d: %v", pin, err)
		}
	}

	log.Printf("shutdown: %s", status.FormatStatusEvent(refresh(), "SHUTDOWN"))
	return runErr
}

// pinTotals formats per-pin totals as "pin17=bursts/clicks ...".
func pinTotals(snap status.Snapshot) string {
	parts := make([]string, 0, len(snap.Pins))
	for _, p := range snap.Pins {
		parts = append(parts, fmt.Sprintf("pin%d=%d/%d", p.Pin, p.Bursts, p.Clicks))
	}
	return strings.Join(parts, " ")
}
