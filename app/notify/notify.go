// Package notify delivers new application alerts and daily digests to email, slack and webhooks
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"strings"
	textTemplate "text/template"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"

	"github.com/reevolve/reevolve/app/web/enums"
	"github.com/reevolve/reevolve/app/web/persistence"
)

// Service sends messages to all configured destinations
type Service struct {
	Params
	senders []sender
	rptr    *repeater.Repeater
}

// Params configure messages and delivery
type Params struct {
	SiteName            string        // used in subjects and message headers
	AdminURL            string        // link to the admin dashboard, optional
	ApplicationTemplate string        // path to custom html template for new application, optional
	DigestTemplate      string        // path to custom html template for daily digest, optional
	Retries             int           // delivery attempts per destination, defaults to 3
	RetryDelay          time.Duration // initial backoff delay, defaults to 1s
}

// SendersParams holds destinations and credentials for all supported transports
type SendersParams struct {
	SMTP           notify.SMTPParams
	FromEmail      string
	ToEmails       []string
	SlackToken     string
	SlackChannels  []string
	WebhookURLs    []string
	WebhookTimeout time.Duration
}

// sender pairs a transport with one destination
type sender struct {
	notifier    notify.Notifier
	destination string // full destination for non-email transports, or recipients list for email
	email       bool   // email gets html body and per-message subject
	from        string
}

// NewService makes notification service, returns nil if no destinations configured
func NewService(p Params, sp SendersParams) *Service {
	res := &Service{Params: p}
	if res.SiteName == "" {
		res.SiteName = "RE-EVOLVE"
	}
	if res.Retries <= 0 {
		res.Retries = 3
	}
	if res.RetryDelay <= 0 {
		res.RetryDelay = time.Second
	}

	if len(sp.ToEmails) > 0 {
		smtp := sp.SMTP
		smtp.ContentType = "text/html"
		res.senders = append(res.senders, sender{
			notifier:    notify.NewEmail(smtp),
			destination: strings.Join(sp.ToEmails, ","),
			email:       true,
			from:        sp.FromEmail,
		})
	}

	if sp.SlackToken != "" {
		slack := notify.NewSlack(sp.SlackToken)
		for _, ch := range sp.SlackChannels {
			res.senders = append(res.senders, sender{notifier: slack, destination: "slack:" + ch})
		}
	}

	if len(sp.WebhookURLs) > 0 {
		timeout := sp.WebhookTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		wh := notify.NewWebhook(notify.WebhookParams{Timeout: timeout, Headers: []string{"Content-Type:text/plain; charset=utf-8"}})
		for _, u := range sp.WebhookURLs {
			res.senders = append(res.senders, sender{notifier: wh, destination: u})
		}
	}

	if len(res.senders) == 0 {
		return nil
	}

	res.rptr = repeater.New(&strategy.Backoff{Repeats: res.Retries, Duration: res.RetryDelay, Factor: 2, Jitter: true})
	log.Printf("[INFO] notifications enabled, %d destination(s)", len(res.senders))
	return res
}

// NotifyApplication sends information about a new application to all destinations
func (s *Service) NotifyApplication(ctx context.Context, rec persistence.Record) error {
	html, err := s.MakeApplicationHTML(rec)
	if err != nil {
		return fmt.Errorf("can't make html for application %d: %w", rec.ID, err)
	}
	subj := fmt.Sprintf("%s: new application from %s", s.SiteName, rec.FullName)
	return s.send(ctx, subj, html, s.applicationText(rec))
}

// NotifyDigest sends the daily digest with aggregated stats
func (s *Service) NotifyDigest(ctx context.Context, stats persistence.Stats, day time.Time) error {
	html, err := s.MakeDigestHTML(stats, day)
	if err != nil {
		return fmt.Errorf("can't make digest html: %w", err)
	}
	subj := fmt.Sprintf("%s: %d new application(s) on %s", s.SiteName, stats.Today, day.Format("2006-01-02"))
	return s.send(ctx, subj, html, s.digestText(stats, day))
}

// send delivers to every destination with retries, collects all errors
func (s *Service) send(ctx context.Context, subj, html, text string) error {
	var errs []error
	for _, snd := range s.senders {
		destination, body := snd.destination, text
		if snd.email {
			destination, body = s.emailDestination(snd, subj), html
		} else if strings.HasPrefix(destination, "slack:") {
			destination += "?title=" + url.QueryEscape(subj)
		}

		err := s.rptr.Do(ctx, func() error {
			return snd.notifier.Send(ctx, destination, body)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snd.notifier, err))
			continue
		}
		log.Printf("[DEBUG] sent %q via %s", subj, snd.notifier)
	}
	return errors.Join(errs...)
}

// emailDestination makes mailto destination with subject and from
func (s *Service) emailDestination(snd sender, subj string) string {
	q := url.Values{}
	q.Set("subject", subj)
	if snd.from != "" {
		q.Set("from", snd.from)
	}
	return "mailto:" + snd.destination + "?" + q.Encode()
}

// MakeApplicationHTML renders html message for a new application, uses custom template if set and valid
func (s *Service) MakeApplicationHTML(rec persistence.Record) (string, error) {
	data := struct {
		Site        string
		AdminURL    string
		ID          int64
		FullName    string
		Email       string
		Phone       string
		Level       string
		Goal        string
		WhyCoaching string
		TS          time.Time
	}{
		Site:        s.SiteName,
		AdminURL:    s.AdminURL,
		ID:          rec.ID,
		FullName:    rec.FullName,
		Email:       rec.Email,
		Phone:       rec.Phone,
		Level:       enums.LevelLabel(rec.FitnessLevel),
		Goal:        enums.GoalLabel(rec.PrimaryGoal),
		WhyCoaching: rec.WhyCoaching,
		TS:          rec.Timestamp,
	}
	return s.render(s.ApplicationTemplate, defaultApplicationTemplate, data)
}

// MakeDigestHTML renders html daily digest, uses custom template if set and valid
func (s *Service) MakeDigestHTML(stats persistence.Stats, day time.Time) (string, error) {
	data := struct {
		Site     string
		AdminURL string
		Day      string
		Total    int
		Today    int
		TopGoal  string
		LatestAt time.Time
	}{
		Site:     s.SiteName,
		AdminURL: s.AdminURL,
		Day:      day.Format("2006-01-02"),
		Total:    stats.Total,
		Today:    stats.Today,
		TopGoal:  enums.GoalLabel(stats.TopGoal),
		LatestAt: stats.LatestAt,
	}
	return s.render(s.DigestTemplate, defaultDigestTemplate, data)
}

// render executes custom template file if provided, falls back to default on any template error
func (s *Service) render(customFile, defaultTmpl string, data any) (string, error) {
	if customFile != "" {
		res, err := s.renderCustom(customFile, data)
		if err == nil {
			return res, nil
		}
		log.Printf("[WARN] can't use custom template %s, fallback to default: %v", customFile, err)
	}

	t, err := template.New("msg").Parse(defaultTmpl)
	if err != nil {
		return "", fmt.Errorf("can't parse message template: %w", err)
	}
	buf := bytes.Buffer{}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}

func (s *Service) renderCustom(fname string, data any) (string, error) {
	body, err := os.ReadFile(fname) //nolint:gosec // template path comes from trusted config
	if err != nil {
		return "", err
	}
	t, err := template.New("custom").Parse(string(body))
	if err != nil {
		return "", err
	}
	buf := bytes.Buffer{}
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) applicationText(rec persistence.Record) string {
	return renderText(`New application #{{.ID}} on {{.Site}}
Name: {{.Name}}
Email: {{.Email}}
Phone: {{.Phone}}
Level: {{.Level}}
Goal: {{.Goal}}
{{if .Why}}Why: {{.Why}}
{{end}}`, map[string]any{
		"ID": rec.ID, "Site": s.SiteName, "Name": rec.FullName, "Email": rec.Email, "Phone": rec.Phone,
		"Level": enums.LevelLabel(rec.FitnessLevel), "Goal": enums.GoalLabel(rec.PrimaryGoal), "Why": rec.WhyCoaching,
	})
}

func (s *Service) digestText(stats persistence.Stats, day time.Time) string {
	return renderText(`{{.Site}} digest for {{.Day}}
New today: {{.Today}}
Total: {{.Total}}
{{if .Goal}}Top goal: {{.Goal}}
{{end}}`, map[string]any{
		"Site": s.SiteName, "Day": day.Format("2006-01-02"), "Today": stats.Today, "Total": stats.Total,
		"Goal": enums.GoalLabel(stats.TopGoal),
	})
}

func renderText(tmpl string, data any) string {
	t := textTemplate.Must(textTemplate.New("text").Parse(tmpl))
	buf := bytes.Buffer{}
	if err := t.Execute(&buf, data); err != nil {
		log.Printf("[WARN] failed to render text message: %v", err)
	}
	return buf.String()
}

const messageStyle = `<style type="text/css">
			body {
				font-family: "Arial";
				font-size: 1.0em;
			}
			ul {
				margin-top: -0.5em;
				margin-left: -0.5em;
			}
			pre {
				padding: 0.6em;
				font-size: 0.9em;
				background-color: #EDEDED;
				white-space: pre-wrap;
				word-wrap: break-word;
			}
			.bold {
				color: #1F6F43;
				font-weight: 900;
			}
		</style>`

var defaultApplicationTemplate = `<!DOCTYPE html>
<html>
	<head>
		<meta name="viewport" content="width=device-width" />
		<meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
		` + messageStyle + `
	</head>

	<body>
		<p>New application #{{.ID}} on <span class="bold">{{.Site}}</span> at {{.TS.Format "2006-01-02T15:04:05Z07:00"}}</p>
		<ul>
			<li>Name: <span class="bold">{{.FullName}}</span></li>
			<li>Email: <a href="mailto:{{.Email}}">{{.Email}}</a></li>
			<li>Phone: {{.Phone}}</li>
			<li>Fitness level: {{.Level}}</li>
			<li>Primary goal: <span class="bold">{{.Goal}}</span></li>
		</ul>
		{{if .WhyCoaching}}<pre>
{{.WhyCoaching}}
		</pre>{{end}}
		{{if .AdminURL}}<p><a href="{{.AdminURL}}">Open dashboard</a></p>{{end}}
	</body>
</html>
`

var defaultDigestTemplate = `<!DOCTYPE html>
<html>
	<head>
		<meta name="viewport" content="width=device-width" />
		<meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
		` + messageStyle + `
	</head>

	<body>
		<p><span class="bold">{{.Site}}</span> applications digest for {{.Day}}</p>
		<ul>
			<li>New today: <span class="bold">{{.Today}}</span></li>
			<li>Total: {{.Total}}</li>
			{{if .TopGoal}}<li>Top goal: {{.TopGoal}}</li>{{end}}
			{{if not .LatestAt.IsZero}}<li>Latest: {{.LatestAt.Format "2006-01-02T15:04:05Z07:00"}}</li>{{end}}
		</ul>
		{{if .AdminURL}}<p><a href="{{.AdminURL}}">Open dashboard</a></p>{{end}}
	</body>
</html>
`
