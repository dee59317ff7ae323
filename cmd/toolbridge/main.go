package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcplink/toolbridge/internal/bridge"
	"github.com/mcplink/toolbridge/internal/config"
	"github.com/mcplink/toolbridge/internal/gateway"
	"github.com/mcplink/toolbridge/internal/logx"
	"github.com/mcplink/toolbridge/internal/registry"
	"github.com/mcplink/toolbridge/internal/tools"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.BridgeConfig
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "toolbridge version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("toolbridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)
	bridge.SetBuildInfo(version, buildSHA, buildDate)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if bridge.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			bridge.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
			go func(d time.Duration) {
				time.Sleep(d)
				if bridge.IsDraining() {
					logx.Log.Warn().Msg("drain timeout exceeded; terminating")
					cancel()
				}
			}(cfg.DrainTimeout)
		}
	}()

	reg := registry.New()
	for _, tl := range tools.Defaults(func() any { return bridge.GetState() }) {
		if err := reg.Add(tl); err != nil {
			logx.Log.Fatal().Err(err).Str("tool", tl.Name).Msg("register built-in tool")
		}
	}

	// The standalone binary is its own host runtime: one goroutine draining
	// the gateway queue stands in for the host's tick.
	gw := gateway.New(cfg.QueueSize, cfg.ExecTimeout)
	go gw.Run(ctx)

	logx.Log.Info().Str("bridge_id", cfg.BridgeID).Str("bridge_name", cfg.BridgeName).Msg("bridge starting")
	if err := bridge.NewSupervisor(cfg, reg, gw).Run(ctx); err != nil {
		logx.Log.Fatal().Err(err).Msg("bridge exited")
	}
}
