package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gregoryjjb/pinloop/console"
	"gregoryjjb/pinloop/demos"
	"gregoryjjb/pinloop/gpio"
	"gregoryjjb/pinloop/loop"
	"gregoryjjb/pinloop/pubsub"
)

func init() {
	InitializeLogger()
}

// Populated by ldflags
var (
	version            string
	buildUnixTimestamp string
	commitHash         string
)

type BuildInfo struct {
	Version    string    `json:"version"`
	BuildTime  time.Time `json:"build_time"`
	CommitHash string    `json:"commit_hash"`
}

func currentBuild() BuildInfo {
	ts, _ := strconv.ParseInt(buildUnixTimestamp, 10, 64)
	return BuildInfo{
		Version:    version,
		BuildTime:  time.Unix(ts, 0),
		CommitHash: commitHash,
	}
}

func main() {
	flags, err := ParseFlags(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	build := currentBuild()

	if flags.Version {
		fmt.Println("Pinloop version:", build.Version)
		fmt.Println("Built on:", build.BuildTime)
		fmt.Println("Commit hash:", build.CommitHash)
		return
	}

	if flags.Systemd {
		if err := SystemdServiceFile(flags.Demo); err != nil {
			log.Fatal().Err(err).Msg("Failed to render service file")
		}
		return
	}

	log.Info().
		Str("version", build.Version).
		Str("build_timestamp", build.BuildTime.Format(time.RFC3339)).
		Str("commit_hash", build.CommitHash).
		Msg("Initializing Pinloop")

	config, err := NewConfig(NewPinloopOSFS(), flags, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Config initialization failed")
	}
	if err := SetLogLevel(config.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("Config initialization failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Serve(ctx, config, build); err != nil {
		log.Fatal().Err(err).Msg("Pinloop stopped with error")
	}
	log.Info().Msg("Pinloop stopped")
}

// Serve opens the driver, boots the runtime with the configured pins and
// demo, and runs the dispatcher and diagnostics server until ctx ends.
func Serve(ctx context.Context, config *Config, build BuildInfo) error {
	driver, err := gpio.Open(config.Driver, config.PinCount)
	if err != nil {
		return fmt.Errorf("GPIO initialization failed: %w", err)
	}
	defer driver.Close()

	events := pubsub.New[loop.Dispatch]()
	opts := config.RuntimeOptions()
	opts.Observer = events.Publish

	rt := loop.New(driver, opts)
	defer rt.Close()

	if _, err := config.SetupPins(rt); err != nil {
		return fmt.Errorf("pin setup failed: %w", err)
	}

	if config.Demo != "" {
		app, err := demos.Start(config.Demo, rt, console.New())
		if err != nil {
			return fmt.Errorf("demo %q failed to start: %w", config.Demo, err)
		}
		defer app.Stop()
		log.Info().Str("demo", config.Demo).Msg("Demo started")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Run(ctx)
	})
	g.Go(func() error {
		return StartServer(ctx, config, build, rt, events)
	})
	return g.Wait()
}
