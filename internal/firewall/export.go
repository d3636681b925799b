package firewall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imghost/internal/config"
	"imghost/internal/model"
)

// RenderDenyList renders active blocks as nginx deny directives so an edge
// proxy can drop blocked clients before they reach the service.
func RenderDenyList(blocked []model.BlockedIP) string {
	var content strings.Builder
	content.WriteString("# Auto-generated blocked IPs - DO NOT EDIT\n")
	content.WriteString("# This file is managed by imghost\n\n")

	if len(blocked) == 0 {
		content.WriteString("# No blocked IPs\n")
		return content.String()
	}
	for _, b := range blocked {
		if b.BlockedUntil != nil {
			fmt.Fprintf(&content, "deny %s; # until %s\n", b.IPAddress, b.BlockedUntil.UTC().Format("2006-01-02T15:04:05Z"))
		} else {
			fmt.Fprintf(&content, "deny %s;\n", b.IPAddress)
		}
	}
	return content.String()
}

// ExportDenyList writes the current block list to path, replacing the file
// atomically. It returns the number of entries written.
func (f *Firewall) ExportDenyList(ctx context.Context, path string) (int, error) {
	blocked, err := f.GetBlockedIPs(ctx)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".deny-*.conf")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(RenderDenyList(blocked)); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), config.DefaultFilePermissions); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return len(blocked), nil
}
