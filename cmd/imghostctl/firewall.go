package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

func cmdFirewall(ctl *controller) *cli.Command {
	return &cli.Command{
		Name:  "firewall",
		Usage: "Manage the request firewall block list and event log",
		Commands: []*cli.Command{
			{
				Name:      "block",
				Usage:     "Block an IP address",
				ArgsUsage: "<ip>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reason",
						Usage: "Reason stored with the block",
					},
					&cli.IntFlag{
						Name:  "hours",
						Usage: "Block duration in hours, 0 blocks permanently",
					},
				},
				Action: ctl.action(runBlock),
			},
			{
				Name:      "unblock",
				Usage:     "Remove an IP address from the block list",
				ArgsUsage: "<ip>",
				Action:    ctl.action(runUnblock),
			},
			{
				Name:   "list",
				Usage:  "List active blocks",
				Action: ctl.action(runListBlocked),
			},
			{
				Name:  "events",
				Usage: "Show recent security events",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of events to show",
						Value: 50,
					},
				},
				Action: ctl.action(runEvents),
			},
			{
				Name:   "stats",
				Usage:  "Show block and event counts",
				Action: ctl.action(runFirewallStats),
			},
			{
				Name:   "cleanup",
				Usage:  "Purge old requests, old events and expired blocks",
				Action: ctl.action(runFirewallCleanup),
			},
			{
				Name:  "export",
				Usage: "Write the block list as nginx deny directives",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Destination file, replaced atomically",
						Required: true,
					},
				},
				Action: ctl.action(runExport),
			},
		},
	}
}

func runBlock(ctx context.Context, c *cli.Command, env *environment) error {
	ip := c.Args().First()
	if ip == "" {
		return errors.New("an IP address is required")
	}

	var hours *int
	if h := int(c.Int("hours")); h != 0 {
		hours = &h
	}

	blocked, err := env.fw.BlockIP(ctx, ip, c.String("reason"), hours)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, blocked)
}

func runUnblock(ctx context.Context, c *cli.Command, env *environment) error {
	ip := c.Args().First()
	if ip == "" {
		return errors.New("an IP address is required")
	}

	removed, err := env.fw.UnblockIP(ctx, ip)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s is not blocked", ip)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "%s unblocked\n", ip)
	return nil
}

func runListBlocked(ctx context.Context, c *cli.Command, env *environment) error {
	blocked, err := env.fw.GetBlockedIPs(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, blocked)
}

func runEvents(ctx context.Context, c *cli.Command, env *environment) error {
	events, err := env.fw.GetRecentEvents(ctx, int(c.Int("limit")))
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, events)
}

func runFirewallStats(ctx context.Context, c *cli.Command, env *environment) error {
	stats, err := env.fw.GetStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, stats)
}

func runFirewallCleanup(ctx context.Context, c *cli.Command, env *environment) error {
	result, err := env.fw.Cleanup(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, result)
}

func runExport(ctx context.Context, c *cli.Command, env *environment) error {
	path := c.String("output")
	n, err := env.fw.ExportDenyList(ctx, path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "wrote %d blocked IPs to %s\n", n, path)
	return nil
}
