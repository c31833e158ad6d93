// Package schedule runs periodic maintenance jobs: database backups and daily digest notifications
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"

	"github.com/reevolve/reevolve/app/web/persistence"
)

// backupPrefix and backupExt form backup file names, like applications-20261017-030000.db
const (
	backupPrefix = "applications-"
	backupExt    = ".db"
)

// Cron interface defines basic robfig/cron methods used by Jobs
type Cron interface {
	Start()
	Stop() context.Context
	Schedule(schedule cron.Schedule, cmd cron.Job) cron.EntryID
}

// Snapshotter makes a consistent copy of the database
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// StatsProvider returns aggregated stats
type StatsProvider interface {
	Stats(ctx context.Context) (persistence.Stats, error)
}

// DigestNotifier sends digest message
type DigestNotifier interface {
	NotifyDigest(ctx context.Context, stats persistence.Stats, day time.Time) error
}

// Jobs wires backup and digest into cron. Each job is enabled by a non-empty schedule spec.
type Jobs struct {
	Cron Cron

	BackupSpec  string // cron spec, e.g. "@daily" or "0 3 * * *"
	BackupDir   string
	BackupKeep  int // how many backups to keep, 0 keeps all
	Snapshotter Snapshotter

	DigestSpec     string
	StatsProvider  StatsProvider
	DigestNotifier DigestNotifier

	Timeout time.Duration    // per-job timeout, defaults to 1m
	Now     func() time.Time // defaults to time.Now
}

// Do schedules enabled jobs and blocks until ctx is canceled
func (j *Jobs) Do(ctx context.Context) error {
	if j.Now == nil {
		j.Now = time.Now
	}
	if j.Timeout <= 0 {
		j.Timeout = time.Minute
	}

	scheduled := 0
	if j.BackupSpec != "" && j.Snapshotter != nil {
		if err := j.schedule(ctx, "backup", j.BackupSpec, j.Backup); err != nil {
			return err
		}
		scheduled++
	}
	if j.DigestSpec != "" && j.StatsProvider != nil && j.DigestNotifier != nil {
		if err := j.schedule(ctx, "digest", j.DigestSpec, j.Digest); err != nil {
			return err
		}
		scheduled++
	}
	if scheduled == 0 {
		log.Printf("[DEBUG] no scheduled jobs")
		<-ctx.Done()
		return nil
	}

	j.Cron.Start()
	<-ctx.Done()
	<-j.Cron.Stop().Done() // wait for running jobs
	log.Printf("[INFO] scheduled jobs stopped")
	return nil
}

func (j *Jobs) schedule(ctx context.Context, name, spec string, fn func(context.Context) error) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("can't parse %s schedule %q: %w", name, spec, err)
	}
	j.Cron.Schedule(sched, cron.FuncJob(func() {
		ctxTimeout, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()
		if err := fn(ctxTimeout); err != nil {
			log.Printf("[WARN] %s job failed, %v", name, err)
		}
	}))
	log.Printf("[INFO] %s scheduled at %q", name, spec)
	return nil
}

// Backup writes a snapshot into BackupDir and removes old backups beyond BackupKeep
func (j *Jobs) Backup(ctx context.Context) error {
	now := j.now()
	path := filepath.Join(j.BackupDir, backupPrefix+now.UTC().Format("20060102-150405")+backupExt)
	if err := j.Snapshotter.Snapshot(ctx, path); err != nil {
		return fmt.Errorf("backup to %s failed: %w", path, err)
	}
	log.Printf("[INFO] database backup saved to %s", path)
	return j.cleanupBackups()
}

// cleanupBackups keeps the newest BackupKeep files. Names sort chronologically.
func (j *Jobs) cleanupBackups() error {
	if j.BackupKeep <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(j.BackupDir, backupPrefix+"*"+backupExt))
	if err != nil {
		return fmt.Errorf("can't list backups: %w", err)
	}
	if len(files) <= j.BackupKeep {
		return nil
	}
	sort.Strings(files)

	var errs []error
	for _, f := range files[:len(files)-j.BackupKeep] {
		if err := os.Remove(f); err != nil {
			errs = append(errs, fmt.Errorf("can't remove old backup %s: %w", f, err))
			continue
		}
		log.Printf("[DEBUG] old backup %s removed", f)
	}
	return errors.Join(errs...)
}

// Digest sends aggregated stats for the current day
func (j *Jobs) Digest(ctx context.Context) error {
	stats, err := j.StatsProvider.Stats(ctx)
	if err != nil {
		return fmt.Errorf("can't get stats for digest: %w", err)
	}
	if err := j.DigestNotifier.NotifyDigest(ctx, stats, j.now()); err != nil {
		return fmt.Errorf("can't send digest: %w", err)
	}
	log.Printf("[INFO] digest sent, today %d, total %d", stats.Today, stats.Total)
	return nil
}

func (j *Jobs) now() time.Time {
	if j.Now == nil {
		return time.Now()
	}
	return j.Now()
}
