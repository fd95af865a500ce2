package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"staybook/internal/config"

	"github.com/rs/zerolog"
)

const (
	defaultBackupInterval = 24 * time.Hour
	snapshotLayout        = "20060102_150405"
	snapshotExt           = ".db"
)

// BackupService takes periodic snapshots of the store into
// cfg.StoragePath as <prefix>_<UTC timestamp>.db. The prefix defaults to the
// database file name, so several stores can share one backup directory.
type BackupService struct {
	db       *DB
	cfg      config.BackupConfig
	prefix   string
	interval time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	s := &BackupService{
		db:       db,
		cfg:      cfg,
		prefix:   cfg.Prefix,
		interval: defaultBackupInterval,
		now:      time.Now,
		logger:   logger,
	}
	if s.prefix == "" && db != nil && db.Path() != ":memory:" {
		base := filepath.Base(db.Path())
		s.prefix = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if s.prefix == "" {
		s.prefix = "staybook"
	}
	if s.cfg.KeepLast <= 0 {
		s.cfg.KeepLast = 1
	}
	if cfg.Schedule != "" {
		d, err := time.ParseDuration(cfg.Schedule)
		if err == nil && d > 0 {
			s.interval = d
		} else {
			logger.Warn().Err(err).Str("schedule", cfg.Schedule).Dur("interval", s.interval).Msg("Invalid backup schedule, using default")
		}
	}
	return s
}

// Start snapshots once immediately and then every interval until ctx ends.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}
	s.logger.Info().Dur("interval", s.interval).Str("prefix", s.prefix).Msg("Backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	if _, err := s.CleanupOldBackups(); err != nil {
		s.logger.Error().Err(err).Msg("Backup retention failed")
	}
}

// PerformBackup writes a consistent copy of the store and returns its path.
// The copy only appears under its final name once it is complete.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	started := s.now()
	final := filepath.Join(s.cfg.StoragePath, s.prefix+"_"+started.UTC().Format(snapshotLayout)+snapshotExt)
	partial := final + ".partial"
	_ = os.Remove(partial)

	escaped := strings.ReplaceAll(partial, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, copying the database file")
		if err := s.copyFile(partial); err != nil {
			_ = os.Remove(partial)
			return "", fmt.Errorf("failed to copy database: %w", err)
		}
	}
	if err := os.Rename(partial, final); err != nil {
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}

	event := s.logger.Info().Str("path", final).Dur("took", s.now().Sub(started))
	if info, err := os.Stat(final); err == nil {
		event = event.Int64("bytes", info.Size())
	}
	event.Msg("Backup completed")
	return final, nil
}

// copyFile is the fallback for SQLite builds without VACUUM INTO. Writes that
// land during the copy may leave it inconsistent.
func (s *BackupService) copyFile(dst string) error {
	if s.db.Path() == ":memory:" {
		return fmt.Errorf("cannot copy an in-memory database")
	}
	source, err := os.Open(s.db.Path())
	if err != nil {
		return err
	}
	defer source.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, source); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

type snapshot struct {
	name  string
	taken time.Time
}

// snapshots lists this store's backups, newest first. Files of other
// prefixes and unfinished copies are ignored.
func (s *BackupService) snapshots() ([]snapshot, error) {
	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	var list []snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.prefix+"_") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix+"_"), snapshotExt)
		taken, err := time.Parse(snapshotLayout, stamp)
		if err != nil {
			info, err := e.Info()
			if err != nil {
				continue
			}
			taken = info.ModTime()
		}
		list = append(list, snapshot{name: name, taken: taken})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].taken.After(list[j].taken) })
	return list, nil
}

// CleanupOldBackups removes snapshots older than RetentionDays, always
// keeping the newest KeepLast of them. It returns how many were removed.
func (s *BackupService) CleanupOldBackups() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	list, err := s.snapshots()
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for i, snap := range list {
		if i < s.cfg.KeepLast || !snap.taken.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, snap.name)); err != nil {
			s.logger.Warn().Err(err).Str("file", snap.name).Msg("Failed to delete old backup")
			continue
		}
		s.logger.Info().Str("file", snap.name).Time("taken", snap.taken).Msg("Deleted old backup")
		removed++
	}
	return removed, nil
}
