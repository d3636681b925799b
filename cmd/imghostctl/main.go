// Command imghostctl runs the firewall and storage admin operations directly
// against the service database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"imghost/internal/config"
	"imghost/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctl := &controller{open: func(context.Context) (*environment, error) {
		cfg := config.Load()
		logger.Init(config.LogConfig{Level: cfg.Log.Level, Mode: "debug"})
		return openEnvironment(cfg)
	}}
	defer ctl.close()

	if err := newApp(ctl).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		ctl.close()
		os.Exit(1)
	}
}

func newApp(ctl *controller) *cli.Command {
	return &cli.Command{
		Name:    "imghostctl",
		Usage:   "Administer the imghost firewall and storage router",
		Version: config.AppVersion,
		Commands: []*cli.Command{
			cmdFirewall(ctl),
			cmdStorage(ctl),
			cmdHashToken(),
		},
	}
}
