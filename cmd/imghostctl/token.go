package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
)

func cmdHashToken() *cli.Command {
	return &cli.Command{
		Name:      "hash-token",
		Usage:     "Print the bcrypt hash of an admin token for ADMIN_TOKEN_HASH",
		ArgsUsage: "<token>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "cost",
				Usage: "bcrypt cost",
				Value: bcrypt.DefaultCost,
			},
		},
		Action: runHashToken,
	}
}

func runHashToken(_ context.Context, c *cli.Command) error {
	token := c.Args().First()
	if len(token) < 16 {
		return errors.New("token must be at least 16 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), int(c.Int("cost")))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Root().Writer, string(hash))
	return nil
}
