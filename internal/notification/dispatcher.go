package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/config"
	"signal-systemv1/internal/model"
)

// Delivery reports how a payload was delivered.
type Delivery struct {
	Channel  string // channel that succeeded, empty on failure
	Attempts int
}

// Dispatcher sends a payload on the primary channel and, if that fails,
// on the fallback channel exactly once. Either channel may be nil.
type Dispatcher struct {
	primary  Notifier
	fallback Notifier
	timeout  time.Duration
	log      zerolog.Logger
}

// NewDispatcher builds a dispatcher from two channels.
func NewDispatcher(primary, fallback Notifier, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if primary == nil {
		primary, fallback = fallback, nil
	}
	return &Dispatcher{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// New builds the configured dispatcher.
func New(cfg config.NotifyConfig, log zerolog.Logger) (*Dispatcher, error) {
	primary, err := channel(cfg.Primary, cfg, log)
	if err != nil {
		return nil, err
	}
	fallback, err := channel(cfg.Fallback, cfg, log)
	if err != nil {
		return nil, err
	}
	return NewDispatcher(primary, fallback, cfg.Timeout, log), nil
}

func channel(name string, cfg config.NotifyConfig, log zerolog.Logger) (Notifier, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "log":
		return NewLogNotifier(log), nil
	case "webhook":
		return NewWebhookNotifier(cfg.Webhook.URL, cfg.Timeout), nil
	case "email":
		return NewEmailNotifier(cfg.Email), nil
	case "telegram":
		return NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown notification channel %q", name)
	}
}

// Channels lists the configured channel names in attempt order.
func (d *Dispatcher) Channels() []string {
	var out []string
	for _, n := range []Notifier{d.primary, d.fallback} {
		if n != nil {
			out = append(out, n.Name())
		}
	}
	return out
}

// Dispatch delivers p. It fails with ErrNotificationFailure only when every
// configured channel failed.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) (Delivery, error) {
	var (
		del  Delivery
		errs []error
	)
	for _, n := range []Notifier{d.primary, d.fallback} {
		if n == nil {
			continue
		}
		del.Attempts++
		err := d.send(ctx, n, p)
		if err == nil {
			del.Channel = n.Name()
			d.log.Info().Str("channel", n.Name()).Int("signals", len(p.Signals)).Msg("notification sent")
			return del, nil
		}
		d.log.Warn().Err(err).Str("channel", n.Name()).Msg("notification failed")
		errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
	}
	if len(errs) == 0 {
		return del, nil
	}
	return del, fmt.Errorf("%w: %w", model.ErrNotificationFailure, errors.Join(errs...))
}

func (d *Dispatcher) send(ctx context.Context, n Notifier, p Payload) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return n.Send(ctx, p)
}
