//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/fgeck/sevenzip-backup/internal/services/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTelegramConfig(t *testing.T) models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func sampleTargets() []models.TargetResult {
	return []models.TargetResult{
		{ID: "10_documents", Name: "Documents", Status: models.TargetSucceeded, BeforeBytes: 2 << 30, AfterBytes: 1 << 30},
		{ID: "11_pictures", Name: "Pictures", Status: models.TargetFailed, Error: errors.New("7z exited with status 2")},
	}
}

func TestTelegramAgainstFakeAPI_E2E(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	svc := telegram.NewWithClient(testLogger(), server.Client(), server.URL)

	msg := models.TelegramMessage{
		Success:     false,
		Host:        "E2E_user",
		OutputPath:  "/mnt/backup/E2E_user_2024-05-01",
		StartTime:   time.Now().Add(-5 * time.Minute),
		Duration:    5 * time.Minute,
		Encrypted:   true,
		Targets:     sampleTargets(),
		BeforeBytes: 2 << 30,
		AfterBytes:  1 << 30,
	}

	result, err := svc.SendNotification(context.Background(), models.TelegramConfig{BotToken: "TOKEN", ChatID: "42"}, msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Equal(t, "42", received["chat_id"])
	assert.Equal(t, "HTML", received["parse_mode"])
	assert.Contains(t, received["text"], "Documents")
	assert.Contains(t, received["text"], "7z exited with status 2")
}

func TestTelegramSendSummaryNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	msg := models.TelegramMessage{
		Success:     true,
		Host:        "E2E_user",
		OutputPath:  "/mnt/backup/E2E_user_2024-05-01",
		StartTime:   time.Now().Add(-5 * time.Minute),
		Duration:    5 * time.Minute,
		Targets:     sampleTargets()[:1],
		BeforeBytes: 2 << 30,
		AfterBytes:  1 << 30,
	}

	result, err := svc.SendNotification(context.Background(), cfg, msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramSendFailureNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	msg := models.TelegramMessage{
		Success:      false,
		Host:         "E2E_user",
		OutputPath:   "/mnt/backup",
		StartTime:    time.Now().Add(-2 * time.Minute),
		Duration:     2 * time.Minute,
		ErrorMessage: "output folder lies inside a backup target",
	}

	result, err := svc.SendNotification(context.Background(), cfg, msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	cfg := models.TelegramConfig{
		BotToken: "invalid:token",
		ChatID:   "-100123456789",
	}

	svc := telegram.New(testLogger())

	msg := models.TelegramMessage{
		Success: true,
		Host:    "test",
	}

	result, err := svc.SendNotification(context.Background(), cfg, msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
