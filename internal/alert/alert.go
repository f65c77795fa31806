// Package alert e-mails a log file when a scheduled job fails.
package alert

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trading-toolkit/internal/interfaces"
	"trading-toolkit/internal/logger"
)

const defaultTitle = "System encountered an unexpected error"

type Config struct {
	Host       string
	Port       int
	SenderName string
	Username   string
	Password   string
	Receiver   string
	// Location renders the error time; nil means New York.
	Location *time.Location
}

// ConfigFromEnv fills credentials from EMAIL_USERNAME, EMAIL_PASSWORD and
// EMAIL_RECEIVER.
func ConfigFromEnv(host string, port int, senderName string) Config {
	return Config{
		Host:       host,
		Port:       port,
		SenderName: senderName,
		Username:   os.Getenv("EMAIL_USERNAME"),
		Password:   os.Getenv("EMAIL_PASSWORD"),
		Receiver:   os.Getenv("EMAIL_RECEIVER"),
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	cfg     Config
	send    sendFunc
	backoff func() backoff.BackOff
	now     func() time.Time
}

var _ interfaces.AlertSender = (*Sender)(nil)

func NewSender(cfg Config) *Sender {
	if cfg.Location == nil {
		if loc, err := time.LoadLocation("America/New_York"); err == nil {
			cfg.Location = loc
		} else {
			cfg.Location = time.UTC
		}
	}
	return &Sender{
		cfg:  cfg,
		send: smtp.SendMail,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.Multiplier = 2
			return b
		},
		now: time.Now,
	}
}

// Enabled is false when any credential is missing.
func (s *Sender) Enabled() bool {
	return s.cfg.Username != "" && s.cfg.Password != "" && s.cfg.Receiver != ""
}

func (s *Sender) from() string {
	addr := s.cfg.Username
	if !strings.Contains(addr, "@") {
		addr += "@" + strings.TrimPrefix(s.cfg.Host, "smtp.")
	}
	return addr
}

// SendAlert mails the content of logFile. It is a no-op with a warning when
// credentials are not configured, and gives up after three attempts.
func (s *Sender) SendAlert(ctx context.Context, logFile, errorCode, title string) error {
	if !s.Enabled() {
		logger.Warn(ctx, "Email client not configured, alert skipped", "log_file", logFile)
		return nil
	}
	content, err := os.ReadFile(logFile)
	if err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	if title == "" {
		title = defaultTitle
	}
	msg, err := s.message(title, errorCode, string(content))
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	auth := smtp.PlainAuth("", s.from(), s.cfg.Password, s.cfg.Host)
	attempt := 0
	op := func() error {
		attempt++
		err := s.send(addr, auth, s.from(), []string{s.cfg.Receiver}, msg)
		if err != nil {
			logger.Warn(ctx, "Alert send failed", "attempt", attempt, "error", err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(s.backoff(), 2), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("send alert after %d attempts: %w", attempt, err)
	}
	logger.Info(ctx, "Alert sent", "receiver", s.cfg.Receiver, "error_code", errorCode)
	return nil
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks so a value cannot start a new header.
func headerValue(v string) string { return headerBreaks.Replace(v) }

var alertTemplate = template.Must(template.New("alert").Parse(`<html><body>
<h2>{{.Title}}</h2>
<p><b>Error time:</b> {{.Time}}</p>
<p><b>Error code:</b> {{.Code}}</p>
<pre>{{.Log}}</pre>
</body></html>
`))

func (s *Sender) message(title, errorCode, logContent string) ([]byte, error) {
	now := s.now().In(s.cfg.Location)
	var body bytes.Buffer
	err := alertTemplate.Execute(&body, map[string]string{
		"Title": title,
		"Time":  now.Format("2006-01-02 15:04"),
		"Code":  errorCode,
		"Log":   logContent,
	})
	if err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", headerValue(s.cfg.SenderName), headerValue(s.from()))
	fmt.Fprintf(&msg, "To: %s\r\n", headerValue(s.cfg.Receiver))
	fmt.Fprintf(&msg, "Subject: [Alert] [%s] %s\r\n", now.Format(time.DateOnly), headerValue(title))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
