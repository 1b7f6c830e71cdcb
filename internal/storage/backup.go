package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const backupDateFormat = "2006-01-02"

// backupPrefix derives the snapshot file prefix from the database file name
func (r *Repository) backupPrefix() string {
	base := filepath.Base(r.path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_"
}

// Backup writes a dated snapshot of the live database into dir and then
// prunes all but the newest keep snapshots (keep 0 keeps everything).
// A second backup on the same day replaces that day's snapshot.
func (r *Repository) Backup(ctx context.Context, dir string, keep int, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := r.backupPrefix() + now.Format(backupDateFormat) + ".db"
	target := filepath.Join(dir, name)
	tmp := target + ".tmp"

	// VACUUM INTO refuses to overwrite an existing file
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to clear stale backup: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move backup into place: %w", err)
	}

	if keep > 0 {
		if err := r.pruneBackups(dir, keep); err != nil {
			// The snapshot itself succeeded
			slog.Warn("Failed to prune old backups", "dir", dir, "error", err)
		}
	}

	return target, nil
}

// pruneBackups removes the oldest snapshots beyond keep
func (r *Repository) pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	prefix := r.backupPrefix()
	var backups []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, prefix) || filepath.Ext(n) != ".db" {
			continue
		}
		if _, err := time.Parse(backupDateFormat, strings.TrimSuffix(strings.TrimPrefix(n, prefix), ".db")); err != nil {
			continue
		}
		backups = append(backups, n)
	}
	if len(backups) <= keep {
		return nil
	}

	// Dates are zero padded, so name order is chronological
	sort.Strings(backups)
	for _, n := range backups[:len(backups)-keep] {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return err
		}
		slog.Info("Removed old backup", "file", n)
	}
	return nil
}
