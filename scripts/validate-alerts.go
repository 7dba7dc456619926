package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fahad0samara/commerce-forecast-go/internal/config"
	"github.com/fahad0samara/commerce-forecast-go/internal/models"
	"github.com/fahad0samara/commerce-forecast-go/internal/services"
)

// botClient is the part of the Telegram client the validation uses.
type botClient interface {
	services.MessageSender
	GetMe(ctx context.Context) (*tgmodels.User, error)
}

func main() {
	fmt.Println("🔧 Validating forecast alert configuration...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  Warning: Could not load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Telegram.BotToken == "" {
		fmt.Println("❌ TELEGRAM_BOT_TOKEN is not configured")
		os.Exit(1)
	}
	b, err := bot.New(cfg.Telegram.BotToken)
	if err != nil {
		fmt.Printf("❌ Failed to create Telegram bot: %v\n", err)
		os.Exit(1)
	}

	sendTest := len(os.Args) > 1 && os.Args[1] == "--send"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := validate(ctx, cfg.Telegram, b, sendTest, os.Stdout); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n🎉 All alert configuration checks passed!")
}

// validate checks the bot token against the API and the configured chats. With sendTest it
// delivers a sample accuracy alert to every chat through the same sink the monitor uses.
func validate(ctx context.Context, cfg config.TelegramConfig, client botClient, sendTest bool, out io.Writer) error {
	fmt.Fprintf(out, "✅ TELEGRAM_BOT_TOKEN is configured (length: %d)\n", len(cfg.BotToken))

	if len(cfg.AlertChatIDs) == 0 {
		return errors.New("telegram.alert_chat_ids is empty, alerts would only be logged")
	}
	fmt.Fprintf(out, "✅ %d alert chat(s) configured\n", len(cfg.AlertChatIDs))

	fmt.Fprintln(out, "🔍 Testing bot API connection...")
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	fmt.Fprintf(out, "✅ Bot API connection successful!\n")
	fmt.Fprintf(out, "   Bot Name: %s\n", me.FirstName)
	fmt.Fprintf(out, "   Bot Username: @%s\n", me.Username)

	if !sendTest {
		return nil
	}

	sink := services.NewTelegramAlertSinkWithSender(client, nil, cfg.RatePerSecond, nil)
	alert := models.Alert{
		ID:        uuid.NewString(),
		Kind:      models.AlertAccuracy,
		CreatedAt: time.Now().UTC(),
		Payload: []models.AccuracyFinding{{
			Scope:        models.Scope{ProductID: 1, WarehouseID: 1},
			Date:         time.Now().UTC().Truncate(24 * time.Hour),
			Actual:       100,
			Forecast:     160,
			ErrorPercent: 60,
			Algorithm:    "exponential_smoothing",
		}},
	}
	if err := sink.Send(ctx, alert, cfg.AlertChatIDs); err != nil {
		return fmt.Errorf("failed to send test alert: %w", err)
	}
	fmt.Fprintf(out, "✅ Test alert delivered to %d chat(s)\n", len(cfg.AlertChatIDs))
	return nil
}
