package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vellum-wm/vellum/internal/ax"
	"github.com/vellum-wm/vellum/internal/config"
	"github.com/vellum-wm/vellum/internal/engine"
	"github.com/vellum-wm/vellum/internal/host/axhost"
	"github.com/vellum-wm/vellum/internal/session"
)

// appAXTimeout bounds one Accessibility round-trip per application. A hung
// app costs at most this much per op and is then skipped.
const appAXTimeout = 100 * time.Millisecond

func applyLogLevel(env config.Env) {
	levelName := env.LogLevel
	if logLevelFlag != "" {
		levelName = logLevelFlag
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		level = log.InfoLevel
	}
	engine.SetLogLevel(level)
	ax.SetLogLevel(level)
	session.SetLogLevel(level)
}

func runDaemon(helperPath string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	applyLogLevel(env)

	cfgPath, err := config.Path()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		return err
	}

	h, err := axhost.New()
	if err != nil {
		if errors.Is(err, axhost.ErrNotTrusted) {
			return fmt.Errorf("%w\ngrant Accessibility permission under System Settings > Privacy & Security, then retry", err)
		}
		return err
	}
	defer h.Close()

	var trans ax.Transport
	if helperPath != "" {
		trans = ax.NewToolTransport(helperPath)
	} else {
		trans = ax.NewBatchTransport(ax.NewBackend(appAXTimeout))
	}
	trans = ax.WithTimeout(trans, time.Duration(env.AXTimeoutMS)*time.Millisecond)

	eng := engine.New(h, trans, cfg.EngineOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath, err := env.SocketPath()
	if err != nil {
		return err
	}
	pidPath, err := config.PIDPath()
	if err != nil {
		return err
	}
	daemon := session.NewDaemon(eng, session.DaemonConfig{
		Version:    version,
		SocketPath: socketPath,
		PIDPath:    pidPath,
		OnStop:     cancel,
	})
	if err := daemon.Start(); err != nil {
		if errors.Is(err, session.ErrAlreadyRunning) {
			return fmt.Errorf("another vellum daemon is already running on %s", socketPath)
		}
		return err
	}
	defer daemon.Stop()

	// Layout and rule edits apply live; workspace name changes need a
	// restart and are deliberately not picked up here.
	watchErr := config.Watch(ctx, cfgPath,
		func(next *config.Config) {
			opts := next.EngineOptions()
			eng.Post(func() { eng.ApplyLayout(opts.Policy, opts.Rules) })
		},
		func(err error) {
			fmt.Fprintf(os.Stderr, "config reload failed, keeping previous: %v\n", err)
		})
	if watchErr != nil {
		fmt.Fprintf(os.Stderr, "config watch unavailable: %v\n", watchErr)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	startErr := make(chan error, 1)
	eng.Post(func() { startErr <- eng.Start() })

	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	if err := <-startErr; err != nil {
		cancel()
		<-runDone
		return err
	}

	err = <-runDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
