// probecal runs the probing and calibration routines against a simulated
// delta machine, so tuning and regression checks do not need hardware. The
// simulated bed can be given per-tower endstop errors and a delta radius
// error, and the tool reports how the calibration loops converge.
//
// Usage:
//
//	probecal [options]
//
// Options:
//
//	-config string        Machine config file (INI, [zprobe] and [calibration] sections)
//	-run string           Routine to run: "endstops", "radius", "depthmap", "repeat", "triforce", "all" (default: "all")
//	-samples int          Repeatability sample count (default: 10)
//	-target float         Tolerance override in mm (0 = use config)
//	-tower-errors string  Simulated per-tower endstop errors in mm, comma separated (default: "0.5,-0.3,0.2")
//	-radius-error float   Simulated delta radius error in mm (default: 2.0)
//	-status string        Serve the status stream on this address (e.g. ":7125")
//	-serial string        Mirror the operator report to this serial device
//	-baud int             Serial baud rate (default: 115200)
//	-log-level string     Log level: debug, info, warn, error (default: "info")
//
// Examples:
//
//	# Full calibration pass on the default mis-calibrated machine
//	probecal -run all
//
//	# Endstop loop only, tighter tolerance, verbose
//	probecal -run endstops -target 0.02 -log-level debug
//
//	# Repeatability with the status stream for a dashboard
//	probecal -run repeat -samples 20 -status :7125
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tarm "github.com/tarm/serial"

	"zprobe-go-migration/pkg/calibrate"
	"zprobe-go-migration/pkg/config"
	"zprobe-go-migration/pkg/log"
	"zprobe-go-migration/pkg/metrics"
	"zprobe-go-migration/pkg/motion"
	"zprobe-go-migration/pkg/probe"
	"zprobe-go-migration/pkg/safety"
	"zprobe-go-migration/pkg/status"
)

func main() {
	configFile := flag.String("config", "", "Machine config file")
	run := flag.String("run", "all", "Routine: endstops, radius, depthmap, repeat, triforce, all")
	samples := flag.Int("samples", 10, "Repeatability sample count")
	target := flag.Float64("target", 0, "Tolerance override in mm (0 = use config)")
	towerErrors := flag.String("tower-errors", "0.5,-0.3,0.2", "Simulated per-tower endstop errors in mm")
	radiusError := flag.Float64("radius-error", 2.0, "Simulated delta radius error in mm")
	statusAddr := flag.String("status", "", "Status stream address (e.g. :7125)")
	serialDev := flag.String("serial", "", "Serial device to mirror the report to")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	level := log.ParseLevel(*logLevel)
	log.SetDefaultLevel(level)
	log.Default().SetLevel(level)
	logger := log.New("probecal")

	errs, err := parseTowerErrors(*towerErrors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Configuration: file if given, defaults otherwise.
	var cfg *config.Config
	if *configFile != "" {
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.New()
	}
	pcfg, err := probe.LoadConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in [zprobe] config: %v\n", err)
		os.Exit(1)
	}
	ccfg, err := calibrate.LoadConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in [calibration] config: %v\n", err)
		os.Exit(1)
	}
	pcfg.IsDelta = true
	if *target > 0 {
		ccfg.EndstopTarget = *target
		ccfg.RadiusTarget = *target
	}

	// The simulated machine: a delta whose radius parameter is off by
	// the requested error and whose towers carry endstop errors.
	const trueRadius = 105.0
	sim := motion.NewSimDelta(motion.SimConfig{
		Radius:      trueRadius + *radiusError,
		TrueRadius:  trueRadius,
		ProbeRadius: ccfg.ProbeRadius,
		TowerErrors: errs,
	})

	mon := safety.New()
	mon.OnIdle(func() { sim.Advance(0.001) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warnf("interrupted, halting")
		mon.Kill(safety.ReasonUserRequest)
	}()

	registry := metrics.NewRegistry()
	pm := metrics.NewProbeMetrics(registry)

	zp := probe.New(pcfg, probe.Deps{
		Axes:    [3]motion.Axis{sim.Axis(0), sim.Axis(1), sim.Axis(2)},
		Mover:   sim,
		Monitor: mon,
		Ticker:  sim,
		PinRead: sim.PinRead,
		Forward: sim.Solution().Forward,
		Metrics: pm,
	})

	st := calibrate.New(ccfg, zp, sim, sim, sim)
	st.SetMetrics(pm)

	if *statusAddr != "" {
		srv := status.New(*statusAddr, registry)
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting status server: %v\n", err)
			os.Exit(1)
		}
		defer srv.Stop()
		st.SetReporter(srv)
	}

	// The operator report goes to stdout, and optionally out a serial
	// console as well.
	out := io.Writer(os.Stdout)
	if *serialDev != "" {
		port, err := tarm.OpenPort(&tarm.Config{Name: *serialDev, Baud: *baud})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening serial port %s: %v\n", *serialDev, err)
			os.Exit(1)
		}
		defer port.Close()
		out = io.MultiWriter(os.Stdout, port)
	}

	st.PrintGeometry()
	if err := runRoutines(out, *run, st, sim, *samples); err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}
	st.PrintGeometry()
}

func runRoutines(out io.Writer, run string, st *calibrate.Strategy, sim *motion.SimDelta, samples int) error {
	routines := []string{run}
	if run == "all" {
		routines = []string{"endstops", "radius", "depthmap", "repeat", "triforce"}
	}

	for _, r := range routines {
		switch r {
		case "endstops":
			if err := st.CalibrateEndstops(calibrate.EndstopOptions{}); err != nil {
				return err
			}
			trim, err := sim.Trim()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "endstops: trim %.3f %.3f %.3f\n", trim.X, trim.Y, trim.Z)

		case "radius":
			if err := st.CalibrateDeltaRadius(calibrate.RadiusOptions{}); err != nil {
				return err
			}
			g, err := sim.BasicGeometry()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "delta radius: %.3f\n", g.Radius)

		case "depthmap":
			rep, err := st.DepthMap()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "depth map (mm, + = high):\n")
			for i, d := range rep.Points {
				fmt.Fprintf(out, "  point %2d: %+.3f\n", i, d)
			}
			fmt.Fprintf(out, "  best %.3f, worst %.3f\n", rep.BestAbs, rep.WorstAbs)

		case "repeat":
			rep, err := st.Repeatability(calibrate.RepeatOptions{Samples: samples})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "repeatability over %d samples: mean %.3f mm, stddev %.4f mm, range %.4f mm (%s)\n",
				len(rep.Samples), rep.MeanMM, rep.StdDevMM, rep.RangeMM, rep.Verdict)

		case "triforce":
			rep, err := st.ProbeTriforce()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "triforce: mean %+.4f mm, intersextile %+.4f mm\n", rep.Mean, rep.Intersextile)

		default:
			return fmt.Errorf("unknown routine %q", r)
		}
	}
	return nil
}

func parseTowerErrors(s string) ([3]float64, error) {
	var errs [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return errs, fmt.Errorf("tower-errors wants three comma-separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return errs, fmt.Errorf("bad tower error %q: %v", p, err)
		}
		errs[i] = v
	}
	return errs, nil
}
