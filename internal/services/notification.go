package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fahad0samara/commerce-forecast-go/internal/forecast"
	"github.com/fahad0samara/commerce-forecast-go/internal/metrics"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/telemetry"
)

// maxFindingsPerMessage caps how many findings are listed in one message.
const maxFindingsPerMessage = 10

// AlertSink delivers monitor alerts.
type AlertSink interface {
	Send(ctx context.Context, alert models.Alert, recipients []string) error
}

// MessageSender is the part of the Telegram client the sink uses. *bot.Bot satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// NotificationLogger records delivered alerts.
type NotificationLogger interface {
	LogNotification(ctx context.Context, kind models.AlertKind, recipient, content string, sentAt time.Time) error
}

// TelegramAlertSink sends alerts to Telegram chats. Sends are rate limited and guarded by a
// circuit breaker so an unreachable API does not stall the monitor.
type TelegramAlertSink struct {
	sender  MessageSender
	history NotificationLogger
	limiter *rate.Limiter
	breaker *CircuitBreaker
	tracer  *telemetry.BusinessTracer
	logger  *logrus.Logger
	now     func() time.Time
}

// NewTelegramAlertSink connects a bot with the given token.
func NewTelegramAlertSink(token string, history NotificationLogger, ratePerSecond float64, logger *logrus.Logger) (*TelegramAlertSink, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramAlertSinkWithSender(b, history, ratePerSecond, logger), nil
}

// NewTelegramAlertSinkWithSender builds a sink over an existing client. history may be nil.
func NewTelegramAlertSinkWithSender(sender MessageSender, history NotificationLogger, ratePerSecond float64, logger *logrus.Logger) *TelegramAlertSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &TelegramAlertSink{
		sender:  sender,
		history: history,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		breaker: NewCircuitBreaker("telegram", CircuitBreakerConfig{
			FailureThreshold: 3,
			Timeout:          30 * time.Second,
		}, logger),
		tracer: telemetry.NewBusinessTracer(),
		logger: logger,
		now:    time.Now,
	}
}

// Send delivers the alert to every recipient. Failed recipients do not stop the others;
// their errors are joined into the returned error.
func (s *TelegramAlertSink) Send(ctx context.Context, alert models.Alert, recipients []string) error {
	ctx, span := s.tracer.TraceNotification(ctx, alert.Kind, "telegram")
	defer span.End()

	text := FormatAlert(alert)
	var errs []error
	delivered := 0

	for _, recipient := range recipients {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			_, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:    chatID(recipient),
				Text:      text,
				ParseMode: tgmodels.ParseModeMarkdown,
			})
			return err
		})
		if err != nil {
			metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "failed").Inc()
			s.logger.WithFields(logrus.Fields{
				"alert_kind": alert.Kind,
				"recipient":  recipient,
			}).WithError(err).Warn("Failed to send alert")
			errs = append(errs, fmt.Errorf("recipient %s: %w", recipient, err))
			continue
		}

		delivered++
		metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "sent").Inc()
		if s.history != nil {
			if err := s.history.LogNotification(ctx, alert.Kind, recipient, text, s.now()); err != nil {
				s.logger.WithError(err).WithField("recipient", recipient).Warn("Failed to log notification")
			}
		}
	}

	err := errors.Join(errs...)
	s.tracer.RecordNotificationResult(span, delivered, err)
	return err
}

// chatID passes numeric ids as int64 and channel usernames as strings.
func chatID(recipient string) any {
	if id, err := strconv.ParseInt(recipient, 10, 64); err == nil {
		return id
	}
	return recipient
}

// LogAlertSink writes alerts to the log. It is used when no Telegram token is configured.
type LogAlertSink struct {
	logger *logrus.Logger
}

// NewLogAlertSink creates a sink that only logs.
func NewLogAlertSink(logger *logrus.Logger) *LogAlertSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogAlertSink{logger: logger}
}

// Send logs the alert once.
func (s *LogAlertSink) Send(_ context.Context, alert models.Alert, recipients []string) error {
	s.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"alert_kind": alert.Kind,
		"recipients": len(recipients),
	}).Warn(FormatAlert(alert))
	metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "logged").Inc()
	return nil
}

// FormatAlert renders an alert as Telegram Markdown.
func FormatAlert(alert models.Alert) string {
	var b strings.Builder

	switch payload := alert.Payload.(type) {
	case []models.AccuracyFinding:
		fmt.Fprintf(&b, "⚠️ *Forecast accuracy alert*\n\n%d forecasts missed by more than the threshold:\n\n", len(payload))
		for i, f := range payload {
			if i == maxFindingsPerMessage {
				fmt.Fprintf(&b, "\n...and %d more\n", len(payload)-i)
				break
			}
			fmt.Fprintf(&b, "• Product %d @ warehouse %d on %s: forecast %d, actual %d (%.1f%% off, %s)\n",
				f.ProductID, f.WarehouseID, f.Date.Format("2006-01-02"), f.Forecast, f.Actual, f.ErrorPercent, displayName(f.Algorithm))
		}

	case []models.AnomalyFinding:
		fmt.Fprintf(&b, "📈 *Sales anomaly alert*\n\n%d scopes sold far outside their recent range:\n\n", len(payload))
		for i, f := range payload {
			if i == maxFindingsPerMessage {
				fmt.Fprintf(&b, "\n...and %d more\n", len(payload)-i)
				break
			}
			fmt.Fprintf(&b, "• Product %d @ warehouse %d on %s: sold %d vs mean %.1f (z = %.2f)\n",
				f.ProductID, f.WarehouseID, f.Date.Format("2006-01-02"), f.Quantity, f.Mean, f.ZScore)
		}

	case []models.ComparisonFinding:
		fmt.Fprintf(&b, "🔁 *Model comparison*\n\n%d scopes would forecast better with another algorithm:\n\n", len(payload))
		for i, f := range payload {
			if i == maxFindingsPerMessage {
				fmt.Fprintf(&b, "\n...and %d more\n", len(payload)-i)
				break
			}
			fmt.Fprintf(&b, "• Product %d @ warehouse %d: switch to %s (MAPE %.1f%%) from %s (MAPE %.1f%%)\n",
				f.ProductID, f.WarehouseID, displayName(f.BestAlgorithm), f.BestMAPE, displayName(f.WorstAlgorithm), f.WorstMAPE)
		}

	default:
		fmt.Fprintf(&b, "*%s alert*\n\n%v", alert.Kind, alert.Payload)
	}

	return b.String()
}

func displayName(name string) string {
	a, err := forecast.ParseAlgorithm(name)
	if err != nil {
		return name
	}
	return a.DisplayName()
}
