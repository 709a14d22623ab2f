// Command nfp runs the network filter processor: it loads a pipeline
// descriptor, binds the UDP server and client sockets, and streams audio
// blocks through a per-connection filter pipeline until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/nfpgo/nfp/internal/applog"
	"github.com/nfpgo/nfp/internal/config"
	"github.com/nfpgo/nfp/internal/dump"
	"github.com/nfpgo/nfp/internal/engine"
	"github.com/nfpgo/nfp/internal/netio"
	"github.com/nfpgo/nfp/internal/pipeline"
	"github.com/nfpgo/nfp/internal/workerpool"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dumpCoeffsPath = pflag.StringP("dump-coeffs", "d", "", "Write resolved filter coefficients to this file, one value per line, and continue.")
		logDir         = pflag.StringP("log-dir", "l", "", "Directory for daily-rotated connection-activity CSV logs. Empty disables the activity log.")
		logLevel       = pflag.StringP("log-level", "v", "info", "Structured log level: debug, info, warn, error.")
		workers        = pflag.IntP("workers", "w", 2, "Number of worker-pool goroutines for packet dispatch and reaping.")
		queueDepth     = pflag.IntP("queue-depth", "q", 256, "Worker pool task queue depth.")
	)
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "ERROR: config file is missing!")
		return 1
	}
	configPath := pflag.Arg(0)

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := applog.New(os.Stderr, level)

	desc, err := config.Load(configPath)
	if err != nil {
		logger.Error("ERROR", "err", err)
		return 1
	}

	firstPipeline, err := config.BuildPipeline(desc.Elements, desc.Conn.SampFreq)
	if err != nil {
		logger.Error("ERROR", "err", err)
		return 1
	}

	if *dumpCoeffsPath != "" {
		if err := dump.WriteCoeffs(*dumpCoeffsPath, firstPipeline); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
	}

	activity, err := applog.NewActivityLog(*logDir)
	if err != nil {
		logger.Error("ERROR", "err", err)
		return 1
	}
	defer activity.Close()

	pool := workerpool.New(*workers, *queueDepth)
	defer pool.Stop()

	factory := func() *pipeline.Pipeline {
		p, buildErr := config.BuildPipeline(desc.Elements, desc.Conn.SampFreq)
		if buildErr != nil {
			logger.Error("pipeline build failed", "err", buildErr)
			return pipeline.New()
		}
		return p
	}

	eng := engine.New(pool, factory, desc.Conn.Policy, engine.WithLogger(logger), engine.WithActivity(activity))

	logger.Info("initializing server and client", "port", desc.Conn.ServerPort, "client", desc.Conn.ClientAddrV4.String())

	sender, err := netio.NewSender(desc.Conn.ClientAddrV4, logger)
	if err != nil {
		logger.Error("ERROR", "err", err)
		return 1
	}
	defer sender.Close()
	eng.SetSender(sender)

	receiver, err := netio.NewReceiver(int(desc.Conn.ServerPort), eng, logger)
	if err != nil {
		logger.Error("ERROR", "err", err)
		return 1
	}
	defer receiver.Close()

	eng.StartReaper()
	defer eng.StopReaper()

	go func() {
		if err := receiver.Run(); err != nil {
			logger.Error("receive loop exited", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	// Shutdown order: stop the receiver first so no new work enters,
	// cancel the reaper, close the sender, stop the worker pool, and only
	// then close the activity log (ambient, outside the core sequence).
	// The deferred calls above are a safety net for early-return failure
	// paths and are harmless no-ops here.
	receiver.Close()
	eng.StopReaper()
	sender.Close()
	pool.Stop()
	activity.Close()

	return 0
}
