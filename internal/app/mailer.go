package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"manity/internal/config"
	"manity/internal/domain"
	"manity/internal/repo"
)

const (
	defaultMailInterval = 5 * time.Second
	defaultMailTimeout  = 5 * time.Second
	defaultMailBatch    = 50
)

// Mailer drains the email outbox into a webhook, one POST per message.
type Mailer struct {
	Repo     repo.Repo
	Config   config.EmailConfig
	Client   *http.Client
	Logger   *slog.Logger
	Interval time.Duration

	limiter *rate.Limiter
	wake    chan struct{}
}

func NewMailer(r repo.Repo, cfg config.EmailConfig, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Mailer{
		Repo:     r,
		Config:   cfg,
		Client:   &http.Client{Timeout: defaultMailTimeout},
		Logger:   logger.With("component", "mailer"),
		Interval: defaultMailInterval,
		limiter:  rate.NewLimiter(limit, burst),
		wake:     make(chan struct{}, 1),
	}
}

// Enabled reports whether a delivery webhook is configured.
func (m *Mailer) Enabled() bool {
	return strings.TrimSpace(m.Config.WebhookURL) != ""
}

// Notify wakes Run without blocking.
func (m *Mailer) Notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued mail until ctx is done.
func (m *Mailer) Run(ctx context.Context) error {
	if !m.Enabled() {
		<-ctx.Done()
		return nil
	}
	interval := m.Interval
	if interval <= 0 {
		interval = defaultMailInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.DeliverPending(ctx); err != nil && ctx.Err() == nil {
			m.Logger.Warn("outbox delivery failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-m.wake:
		}
	}
}

// DeliverPending posts one batch of queued messages and returns how many
// were accepted by the webhook.
func (m *Mailer) DeliverPending(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, nil
	}
	pending, err := m.Repo.ListEmails(ctx, domain.EmailQueued, defaultMailBatch)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	sent := 0
	for _, e := range pending {
		if err := m.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		if err := m.post(ctx, e); err != nil {
			final := e.Attempts+1 >= m.maxAttempts()
			m.Logger.Warn("email delivery failed", "id", e.ID, "attempt", e.Attempts+1, "final", final, "error", err)
			if merr := m.Repo.MarkEmailAttemptFailed(ctx, e.ID, err.Error(), final); merr != nil {
				return sent, merr
			}
			continue
		}
		if err := m.Repo.MarkEmailSent(ctx, e.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (m *Mailer) maxAttempts() int {
	if m.Config.MaxAttempts < 1 {
		return 1
	}
	return m.Config.MaxAttempts
}

type webhookMail struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Queued  string   `json:"queued_at"`
}

func (m *Mailer) post(ctx context.Context, e domain.Email) error {
	data, err := json.Marshal(webhookMail{
		ID:      e.ID,
		From:    m.Config.From,
		To:      e.Recipients,
		Subject: e.Subject,
		Body:    e.Body,
		Queued:  e.CreatedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Config.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Manity-Delivery", e.ID)
	if strings.TrimSpace(m.Config.Secret) != "" {
		req.Header.Set("X-Manity-Secret", m.Config.Secret)
	}
	res, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
