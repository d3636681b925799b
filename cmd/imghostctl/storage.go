package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"slices"

	"github.com/urfave/cli/v3"

	"imghost/internal/model"
)

func cmdStorage(ctl *controller) *cli.Command {
	return &cli.Command{
		Name:  "storage",
		Usage: "Inspect and manage the R2/S3 storage router",
		Commands: []*cli.Command{
			{
				Name:   "usage",
				Usage:  "Show R2 capacity usage",
				Action: ctl.action(runUsage),
			},
			{
				Name:   "status",
				Usage:  "Show usage for both providers, the operation budget and current routing",
				Action: ctl.action(runStatus),
			},
			{
				Name:  "operations",
				Usage: "Show class A/B operation usage",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "recent",
						Usage: "Also list this many of the newest logged operations",
					},
				},
				Action: ctl.action(runOperations),
			},
			{
				Name:   "cleanup",
				Usage:  "Purge operation log rows past retention",
				Action: ctl.action(runOperationCleanup),
			},
			{
				Name:      "upload",
				Usage:     "Upload a file through the router",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Usage:    "Object key",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "size-type",
						Usage: "Image variant: thumb, medium, large or original",
						Value: string(model.SizeOriginal),
					},
					&cli.StringFlag{
						Name:  "content-type",
						Usage: "Content type, guessed from the file extension when empty",
					},
				},
				Action: ctl.action(runUpload),
			},
			{
				Name:      "delete",
				Usage:     "Delete an object and release its usage",
				ArgsUsage: "<r2|s3> <key>",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "size",
						Usage: "Bytes freed by the delete",
					},
					&cli.Int64Flag{
						Name:  "files",
						Usage: "Files freed by the delete",
						Value: 1,
					},
				},
				Action: ctl.action(runDelete),
			},
		},
	}
}

func runUsage(ctx context.Context, c *cli.Command, env *environment) error {
	usage, err := env.router.GetR2Usage(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, usage)
}

func runStatus(ctx context.Context, c *cli.Command, env *environment) error {
	status, err := env.router.GetStorageStatus(ctx)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, status)
}

func runOperations(ctx context.Context, c *cli.Command, env *environment) error {
	usage, err := env.limiter.GetUsageStats(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(c.Root().Writer, usage); err != nil {
		return err
	}

	if n := int(c.Int("recent")); n > 0 {
		ops, err := env.limiter.RecentOperations(ctx, n)
		if err != nil {
			return err
		}
		return printJSON(c.Root().Writer, ops)
	}
	return nil
}

func runOperationCleanup(ctx context.Context, c *cli.Command, env *environment) error {
	removed, err := env.limiter.Cleanup(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "removed %d operations\n", removed)
	return nil
}

func runUpload(ctx context.Context, c *cli.Command, env *environment) error {
	file := c.Args().First()
	if file == "" {
		return errors.New("a file is required")
	}

	sizeType := model.SizeType(c.String("size-type"))
	if !slices.Contains(model.SizeTypes, sizeType) {
		return fmt.Errorf("unknown size type %q", sizeType)
	}

	contentType := c.String("content-type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(file))
	}

	result, err := env.router.Upload(ctx, file, c.String("key"), contentType, sizeType)
	if err != nil {
		return err
	}
	return printJSON(c.Root().Writer, result)
}

func runDelete(ctx context.Context, c *cli.Command, env *environment) error {
	if c.Args().Len() != 2 {
		return errors.New("usage: storage delete <r2|s3> <key>")
	}
	provider := model.Provider(c.Args().Get(0))
	key := c.Args().Get(1)
	if !provider.Valid() {
		return fmt.Errorf("unknown provider %q", provider)
	}

	size, files := c.Int64("size"), c.Int64("files")
	if size < 0 || files < 0 {
		return errors.New("size and files must not be negative")
	}

	if err := env.router.Delete(ctx, provider, key); err != nil {
		return err
	}
	if err := env.router.ReduceUsage(ctx, provider, size, files); err != nil {
		return fmt.Errorf("object deleted but usage not reduced: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "deleted %s from %s\n", key, provider)
	return nil
}
