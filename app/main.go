package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	gonotify "github.com/go-pkgz/notify"
	"github.com/go-pkgz/syncs"
	"github.com/robfig/cron/v3"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/reevolve/reevolve/app/notify"
	"github.com/reevolve/reevolve/app/schedule"
	"github.com/reevolve/reevolve/app/service"
	"github.com/reevolve/reevolve/app/web"
	"github.com/reevolve/reevolve/app/web/persistence"
)

var opts struct {
	Listen    string `short:"l" long:"listen" env:"REEVOLVE_LISTEN" default:":3001" description:"listen address"`
	DBPath    string `long:"db" env:"REEVOLVE_DB" default:"data/applications.db" description:"applications database file"`
	StaticDir string `long:"static" env:"REEVOLVE_STATIC" description:"directory with built site, empty disables static serving"`
	Dbg       bool   `long:"dbg" env:"REEVOLVE_DEBUG" description:"debug mode"`

	Admin struct {
		PasswordHash string        `long:"password-hash" env:"PASSWORD_HASH" description:"bcrypt hash of admin password, empty disables auth"`
		LoginTTL     time.Duration `long:"login-ttl" env:"LOGIN_TTL" default:"168h" description:"admin session lifetime"`
	} `group:"admin" namespace:"admin" env-namespace:"REEVOLVE_ADMIN"`

	Limits struct {
		SubmitRate  float64 `long:"submit-rate" env:"SUBMIT_RATE" default:"1" description:"max submissions per second per IP"`
		SubmitBurst int     `long:"submit-burst" env:"SUBMIT_BURST" default:"5" description:"submission burst per IP"`
		LoginRate   float64 `long:"login-rate" env:"LOGIN_RATE" default:"0.2" description:"max login attempts per second per IP"`
	} `group:"limits" namespace:"limits" env-namespace:"REEVOLVE_LIMITS"`

	Notify struct {
		SiteName            string        `long:"site-name" env:"SITE_NAME" default:"RE-EVOLVE" description:"site name used in messages"`
		AdminURL            string        `long:"admin-url" env:"ADMIN_URL" description:"dashboard link added to messages"`
		ApplicationTemplate string        `long:"application-template" env:"APPLICATION_TEMPLATE" description:"custom html template for new application"`
		DigestTemplate      string        `long:"digest-template" env:"DIGEST_TEMPLATE" description:"custom html template for daily digest"`
		SMTPHost            string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort            int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername        string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword        string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS             bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPStartTLS        bool          `long:"smtp-starttls" env:"SMTP_STARTTLS" description:"enable SMTP STARTTLS"`
		SMTPTimeOut         time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
		FromEmail           string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails            []string      `long:"to" env:"TO" description:"SMTP to email(s)" env-delim:","`
		SlackToken          string        `long:"slack-token" env:"SLACK_TOKEN" description:"slack bot token"`
		SlackChannels       []string      `long:"slack-channel" env:"SLACK_CHANNELS" description:"slack channel(s)" env-delim:","`
		WebhookURLs         []string      `long:"webhook" env:"WEBHOOKS" description:"webhook url(s)" env-delim:","`
		Retries             int           `long:"retries" env:"RETRIES" default:"3" description:"delivery attempts per destination"`
		Timeout             time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"per-notification timeout"`
		Concurrency         int           `long:"concurrency" env:"CONCURRENCY" default:"4" description:"max parallel notifications"`
	} `group:"notify" namespace:"notify" env-namespace:"REEVOLVE_NOTIFY"`

	Backup struct {
		Spec string `long:"spec" env:"SPEC" description:"backup cron schedule, e.g. @daily, empty disables backups"`
		Dir  string `long:"dir" env:"DIR" default:"data/backups" description:"backup directory"`
		Keep int    `long:"keep" env:"KEEP" default:"7" description:"how many backups to keep, 0 keeps all"`
	} `group:"backup" namespace:"backup" env-namespace:"REEVOLVE_BACKUP"`

	Digest struct {
		Spec string `long:"spec" env:"SPEC" description:"daily digest cron schedule, e.g. 0 20 * * *, empty disables digest"`
	} `group:"digest" namespace:"digest" env-namespace:"REEVOLVE_DIGEST"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"reevolve.log" description:"file to write logs to"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of old log files to retain"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max number of days to retain old log files"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"REEVOLVE_LOG"`
}

var revision = "unknown"

func main() {
	fmt.Printf("reevolve %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	logOut := setupLogs()
	defer closeLogs(logOut)

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT, SIGINT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		closeLogs(logOut)
		os.Exit(1)
	}
}

// run opens the store and runs web server and scheduled jobs until ctx is canceled
func run(ctx context.Context) error {
	store, err := persistence.NewSQLiteStore(opts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open applications store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()
	log.Printf("[INFO] applications store %s", store.Path())

	notifier := makeNotifier()
	svcParams := service.Params{Store: store, NotifyTimeout: opts.Notify.Timeout, Concurrency: opts.Notify.Concurrency}
	if notifier != nil {
		svcParams.Notifier = notifier
	}
	records := service.New(svcParams)
	defer records.Close() // wait for in-flight notifications

	srv, err := web.New(web.Config{
		Records:      records,
		Version:      revision,
		PasswordHash: opts.Admin.PasswordHash,
		LoginTTL:     opts.Admin.LoginTTL,
		StaticDir:    opts.StaticDir,
		SubmitRate:   opts.Limits.SubmitRate,
		SubmitBurst:  opts.Limits.SubmitBurst,
		LoginRate:    opts.Limits.LoginRate,
	})
	if err != nil {
		return err
	}
	if opts.Admin.PasswordHash == "" {
		log.Printf("[WARN] admin password is not set, admin API is open")
	}

	jobs := makeJobs(store, records, notifier)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg := syncs.NewErrSizedGroup(2)
	eg.Go(func() error {
		defer cancel()
		return srv.Run(ctx, opts.Listen)
	})
	eg.Go(func() error {
		defer cancel()
		if err := jobs.Do(ctx); err != nil {
			return fmt.Errorf("scheduled jobs failed: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

func makeJobs(store *persistence.SQLiteStore, records *service.Records, notifier *notify.Service) *schedule.Jobs {
	res := &schedule.Jobs{
		Cron:          cron.New(),
		BackupSpec:    opts.Backup.Spec,
		BackupDir:     opts.Backup.Dir,
		BackupKeep:    opts.Backup.Keep,
		Snapshotter:   store,
		DigestSpec:    opts.Digest.Spec,
		StatsProvider: records,
	}
	if notifier != nil {
		res.DigestNotifier = notifier
	} else if opts.Digest.Spec != "" {
		log.Printf("[WARN] digest schedule set, but no notification destinations configured")
	}
	return res
}

func makeNotifier() *notify.Service {
	from := opts.Notify.FromEmail
	if from == "" && len(opts.Notify.ToEmails) > 0 {
		from = "reevolve@" + makeHostName()
	}

	return notify.NewService(
		notify.Params{
			SiteName:            opts.Notify.SiteName,
			AdminURL:            opts.Notify.AdminURL,
			ApplicationTemplate: opts.Notify.ApplicationTemplate,
			DigestTemplate:      opts.Notify.DigestTemplate,
			Retries:             opts.Notify.Retries,
		},
		notify.SendersParams{
			SMTP: gonotify.SMTPParams{
				Host:     opts.Notify.SMTPHost,
				Port:     opts.Notify.SMTPPort,
				TLS:      opts.Notify.SMTPTLS,
				StartTLS: opts.Notify.SMTPStartTLS,
				Username: opts.Notify.SMTPUsername,
				Password: opts.Notify.SMTPPassword,
				TimeOut:  opts.Notify.SMTPTimeOut,
			},
			FromEmail:     from,
			ToEmails:      opts.Notify.ToEmails,
			SlackToken:    opts.Notify.SlackToken,
			SlackChannels: opts.Notify.SlackChannels,
			WebhookURLs:   opts.Notify.WebhookURLs,
		},
	)
}

func makeHostName() string {
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

// setupLogs configures lgr and returns the log destination, rotating file if enabled
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces}
	if opts.Dbg {
		logOpts = []log.Option{log.Debug, log.Msec, log.LevelBraces, log.CallerFunc, log.CallerPkg, log.CallerFile}
	}

	if !opts.Log.Enabled {
		log.Setup(logOpts...)
		return os.Stdout
	}

	out := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
	}
	logOpts = append(logOpts, log.Out(io.MultiWriter(os.Stdout, out)), log.Err(io.MultiWriter(os.Stderr, out)))
	log.Setup(logOpts...)
	return out
}

// closeLogs flushes and closes rotating log file, stdout is left alone
func closeLogs(w io.Writer) {
	c, ok := w.(io.Closer)
	if !ok || w == os.Stdout {
		return
	}
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
}

func signals(cancel context.CancelFunc) {
	// catch SIGQUIT and print stack traces
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for range sigChan {
			length := runtime.Stack(stacktrace, true)
			fmt.Println(string(stacktrace[:length]))
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT)

	termCh := make(chan os.Signal, 1)
	go func() {
		sig := <-termCh
		log.Printf("[INFO] %v received, shutting down", sig)
		cancel()
	}()
	signal.Notify(termCh, syscall.SIGINT, syscall.SIGTERM)
}
