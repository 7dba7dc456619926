package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

type sentMessage struct {
	chatID any
	text   string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn map[any]error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[params.ChatID]; ok {
		return nil, err
	}
	f.sent = append(f.sent, sentMessage{chatID: params.ChatID, text: params.Text})
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

type fakeNotificationLog struct {
	mu         sync.Mutex
	recipients []string
}

func (f *fakeNotificationLog) LogNotification(_ context.Context, _ models.AlertKind, recipient, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, recipient)
	return nil
}

func accuracyAlert(n int) models.Alert {
	findings := make([]models.AccuracyFinding, n)
	for i := range findings {
		findings[i] = models.AccuracyFinding{
			Scope:        models.Scope{ProductID: int64(i + 1), WarehouseID: 2},
			Date:         time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
			Actual:       100,
			Forecast:     30,
			ErrorPercent: 70,
			Algorithm:    "exponential_smoothing",
		}
	}
	return models.Alert{ID: "a1", Kind: models.AlertAccuracy, Payload: findings}
}

func TestNewTelegramAlertSink_RequiresToken(t *testing.T) {
	sink, err := NewTelegramAlertSink("", nil, 1, logrus.New())
	assert.Error(t, err)
	assert.Nil(t, sink)
}

func TestTelegramAlertSink_Send(t *testing.T) {
	sender := &fakeSender{}
	history := &fakeNotificationLog{}
	sink := NewTelegramAlertSinkWithSender(sender, history, 1000, logrus.New())

	err := sink.Send(context.Background(), accuracyAlert(2), []string{"12345", "@ops_channel"})
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(12345), sender.sent[0].chatID)
	assert.Equal(t, "@ops_channel", sender.sent[1].chatID)
	assert.Contains(t, sender.sent[0].text, "Forecast accuracy alert")
	assert.Equal(t, []string{"12345", "@ops_channel"}, history.recipients)
}

func TestTelegramAlertSink_Send_PartialFailure(t *testing.T) {
	sender := &fakeSender{failOn: map[any]error{int64(1): errors.New("chat not found")}}
	history := &fakeNotificationLog{}
	sink := NewTelegramAlertSinkWithSender(sender, history, 1000, logrus.New())

	err := sink.Send(context.Background(), accuracyAlert(1), []string{"1", "2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient 1: chat not found")

	assert.Len(t, sender.sent, 1, "other recipients still receive the alert")
	assert.Equal(t, []string{"2"}, history.recipients)
}

func TestTelegramAlertSink_Send_BreakerOpens(t *testing.T) {
	down := errors.New("bad gateway")
	sender := &fakeSender{failOn: map[any]error{int64(1): down}}
	sink := NewTelegramAlertSinkWithSender(sender, nil, 1000, logrus.New())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, sink.Send(context.Background(), accuracyAlert(1), []string{"1"}), down)
	}
	err := sink.Send(context.Background(), accuracyAlert(1), []string{"1"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, Open, sink.breaker.GetState())
}

func TestTelegramAlertSink_Send_CancelledContext(t *testing.T) {
	sender := &fakeSender{}
	sink := NewTelegramAlertSinkWithSender(sender, nil, 0.001, logrus.New())

	require.NoError(t, sink.Send(context.Background(), accuracyAlert(1), []string{"1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, sink.Send(ctx, accuracyAlert(1), []string{"1"}), "limiter wait is bounded by the context")
	assert.Len(t, sender.sent, 1)
}

func TestLogAlertSink_Send(t *testing.T) {
	sink := NewLogAlertSink(logrus.New())
	assert.NoError(t, sink.Send(context.Background(), accuracyAlert(1), nil))
}

func TestChatID(t *testing.T) {
	assert.Equal(t, int64(-1001234567890), chatID("-1001234567890"))
	assert.Equal(t, "@forecast_alerts", chatID("@forecast_alerts"))
}

func TestFormatAlert_Accuracy(t *testing.T) {
	text := FormatAlert(accuracyAlert(1))

	assert.Contains(t, text, "⚠️ *Forecast accuracy alert*")
	assert.Contains(t, text, "Product 1 @ warehouse 2 on 2024-06-14: forecast 30, actual 100 (70.0% off, Exponential Smoothing)")
}

func TestFormatAlert_TruncatesLongLists(t *testing.T) {
	text := FormatAlert(accuracyAlert(13))

	assert.Contains(t, text, "13 forecasts missed")
	assert.Contains(t, text, "Product 10 @")
	assert.NotContains(t, text, "Product 11 @")
	assert.Contains(t, text, "...and 3 more")
}

func TestFormatAlert_Anomaly(t *testing.T) {
	text := FormatAlert(models.Alert{Kind: models.AlertAnomaly, Payload: []models.AnomalyFinding{{
		Scope:    models.Scope{ProductID: 4, WarehouseID: 1},
		Date:     time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		Quantity: 150,
		Mean:     101.5,
		ZScore:   4.648,
	}}})

	assert.Contains(t, text, "📈 *Sales anomaly alert*")
	assert.Contains(t, text, "sold 150 vs mean 101.5 (z = 4.65)")
}

func TestFormatAlert_Comparison(t *testing.T) {
	text := FormatAlert(models.Alert{Kind: models.AlertModelComparison, Payload: []models.ComparisonFinding{{
		Scope:          models.Scope{ProductID: 9, WarehouseID: 3},
		BestAlgorithm:  "arima",
		BestMAPE:       8,
		WorstAlgorithm: "seasonal_decomposition",
		WorstMAPE:      31.3,
	}}})

	assert.Contains(t, text, "🔁 *Model comparison*")
	assert.Contains(t, text, "switch to ARIMA (MAPE 8.0%) from Seasonal Decomposition (MAPE 31.3%)")
}

func TestFormatAlert_UnknownPayload(t *testing.T) {
	text := FormatAlert(models.Alert{Kind: "custom", Payload: "disk almost full"})
	assert.Equal(t, fmt.Sprintf("*%s alert*\n\n%v", "custom", "disk almost full"), text)
}
