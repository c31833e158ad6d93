package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/reevolve/reevolve/app/service"
	"github.com/reevolve/reevolve/app/web/persistence"
)

func Test_setupLogsWithLogsDisabled(t *testing.T) {
	opts.Log.Enabled = false
	assert.Equal(t, os.Stdout, setupLogs())
}

func Test_setupLogsToFile(t *testing.T) {
	tmpfile, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer func() { opts.Log.Enabled = false; setupLogs() }()

	opts.Log.Enabled = true
	opts.Log.Filename = tmpfile.Name()
	opts.Log.MaxSize = 100
	opts.Log.MaxBackups = 7
	opts.Log.MaxAge = 0
	opts.Log.EnabledCompress = false

	out := setupLogs()
	assert.IsType(t, &lumberjack.Logger{}, out)

	logger := out.(*lumberjack.Logger)
	assert.Equal(t, tmpfile.Name(), logger.Filename)
	assert.Equal(t, 100, logger.MaxSize)
	assert.Equal(t, 7, logger.MaxBackups)
	assert.Equal(t, 0, logger.MaxAge)
	assert.False(t, logger.Compress)

	log.Printf("[INFO] rotated log line")
	closeLogs(out)
	data, err := os.ReadFile(tmpfile.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated log line")
}

func Test_closeLogsKeepsStdout(t *testing.T) {
	closeLogs(os.Stdout)
	_, err := os.Stdout.Stat()
	assert.NoError(t, err, "stdout still open")
}

func Test_makeNotifier(t *testing.T) {
	defer func() { opts.Notify.ToEmails, opts.Notify.WebhookURLs = nil, nil }()

	opts.Notify.ToEmails, opts.Notify.WebhookURLs = nil, nil
	assert.Nil(t, makeNotifier(), "no destinations")

	opts.Notify.ToEmails = []string{"coach@example.com"}
	opts.Notify.SiteName = "RE-EVOLVE"
	notif := makeNotifier()
	require.NotNil(t, notif)
	assert.Equal(t, "RE-EVOLVE", notif.SiteName)

	opts.Notify.ToEmails = nil
	opts.Notify.WebhookURLs = []string{"https://example.com/hook"}
	require.NotNil(t, makeNotifier())
}

func Test_makeHostName(t *testing.T) {
	exp, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, exp, makeHostName())
}

func Test_makeJobs(t *testing.T) {
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()
	records := service.New(service.Params{Store: store})
	defer records.Close()

	opts.Backup.Spec, opts.Backup.Dir, opts.Backup.Keep = "@daily", "backups", 3
	opts.Digest.Spec = "0 20 * * *"
	defer func() { opts.Backup.Spec, opts.Digest.Spec = "", "" }()

	jobs := makeJobs(store, records, nil)
	assert.Equal(t, "@daily", jobs.BackupSpec)
	assert.Equal(t, "backups", jobs.BackupDir)
	assert.Equal(t, 3, jobs.BackupKeep)
	assert.NotNil(t, jobs.Snapshotter)
	assert.Equal(t, "0 20 * * *", jobs.DigestSpec)
	assert.Nil(t, jobs.DigestNotifier, "no notifier, digest disabled")
}

func Test_runBadDB(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	opts.DBPath = filepath.Join(blocker, "applications.db")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open applications store")
}

func Test_runAndStop(t *testing.T) {
	tmpDir := t.TempDir()
	opts.DBPath = filepath.Join(tmpDir, "data", "applications.db")
	opts.Listen = "127.0.0.1:0"
	opts.Admin.LoginTTL = time.Hour
	opts.Backup.Spec = ""
	opts.Digest.Spec = ""

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(opts.DBPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "database file created on start")
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop in time")
	}
}
