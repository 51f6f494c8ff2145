package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.TelegramConfig {
	return models.TelegramConfig{
		BotToken: "123456:ABC-DEF",
		ChatID:   "-100123456789",
	}
}

func TestSendNotification_Success(t *testing.T) {
	var capturedRequest *http.Request
	var capturedBody sendMessageRequest

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedRequest = req
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":true}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success:    true,
		Host:       "server1",
		OutputPath: "/backup/SERVER1_me_2024-01-15",
		StartTime:  time.Now().Add(-5 * time.Minute),
		Duration:   5 * time.Minute,
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)

	// Verify request
	assert.Equal(t, http.MethodPost, capturedRequest.Method)
	assert.Contains(t, capturedRequest.URL.String(), "/bot123456:ABC-DEF/sendMessage")
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))

	// Verify body
	assert.Equal(t, "-100123456789", capturedBody.ChatID)
	assert.Equal(t, "HTML", capturedBody.ParseMode)
	assert.Contains(t, capturedBody.Text, "Backup Successful")
}

func TestSendNotification_FailureMessage(t *testing.T) {
	var capturedBody sendMessageRequest

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success:      false,
		Host:         "server1",
		OutputPath:   "/backup",
		StartTime:    time.Now(),
		Duration:     1 * time.Minute,
		ErrorMessage: "recursive backup: output is inside Documents",
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)

	assert.Contains(t, capturedBody.Text, "Backup Failed")
	assert.Contains(t, capturedBody.Text, "Error Details")
	assert.Contains(t, capturedBody.Text, "recursive backup")
}

func TestSendNotification_HTTPError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("network error")
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success: true,
		Host:    "server1",
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to send request")
}

func TestSendNotification_APIError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":false}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		Success: true,
		Host:    "server1",
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "status 400")
}

func TestFormatMessage_Success(t *testing.T) {
	svc := New(testLogger())

	msg := models.TelegramMessage{
		Success:    true,
		Host:       "myserver",
		OutputPath: "/mnt/backup/MYSERVER_me_2024-01-15",
		StartTime:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Duration:   3*time.Minute + 45*time.Second,
		Encrypted:  true,
		Targets: []models.TargetResult{
			{Name: "Documents", Status: models.TargetSucceeded, BeforeBytes: 100 * 1024 * 1024, AfterBytes: 40 * 1024 * 1024},
			{Name: "Music", Status: models.TargetSkipped},
		},
		BeforeBytes: 100 * 1024 * 1024,
		AfterBytes:  40 * 1024 * 1024,
	}

	result := svc.formatMessage(msg)

	assert.Contains(t, result, "Backup Successful")
	assert.Contains(t, result, "myserver")
	assert.Contains(t, result, "/mnt/backup/MYSERVER_me_2024-01-15")
	assert.Contains(t, result, "2024-01-15 10:30:00")
	assert.Contains(t, result, "3m45s")
	assert.Contains(t, result, "Encrypted:</b> yes")
	assert.Contains(t, result, "Documents: 100 MiB → 40 MiB")
	assert.Contains(t, result, "Music: skipped")
	assert.Contains(t, result, "Total:</b> 100 MiB → 40 MiB")
}

func TestFormatMessage_PartialFailure(t *testing.T) {
	svc := New(testLogger())

	msg := models.TelegramMessage{
		Success: false,
		Host:    "myserver",
		Targets: []models.TargetResult{
			{Name: "Documents", Status: models.TargetSucceeded, BeforeBytes: 2048, AfterBytes: 1024},
			{Name: "Plex <Server>", Status: models.TargetFailed, Error: errors.New("compress of Plex Server failed: exit status 2")},
		},
	}

	result := svc.formatMessage(msg)

	assert.Contains(t, result, "Completed With 1 Failed Target(s)")
	assert.Contains(t, result, "Plex &lt;Server&gt;: failed <code>compress of Plex Server failed: exit status 2</code>")
	assert.Contains(t, result, "Documents: 2.0 KiB → 1.0 KiB")
	assert.Contains(t, result, "Encrypted:</b> no")
}

func TestFormatMessage_Failure(t *testing.T) {
	svc := New(testLogger())

	msg := models.TelegramMessage{
		Success:      false,
		Host:         "myserver",
		OutputPath:   "/backup",
		StartTime:    time.Now(),
		Duration:     1 * time.Minute,
		ErrorMessage: "timeout waiting for /mnt/backup",
	}

	result := svc.formatMessage(msg)

	assert.Contains(t, result, "Backup Failed")
	assert.Contains(t, result, "timeout waiting for /mnt/backup")
	assert.NotContains(t, result, "Targets:")
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"<script>", "&lt;script&gt;"},
		{"a & b", "a &amp; b"},
		{"<>&", "&lt;&gt;&amp;"},
		{"normal text", "normal text"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeHTML(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSendNotification_ContextCancelled(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, context.Canceled
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := models.TelegramMessage{
		Success: true,
		Host:    "server1",
	}

	result, err := svc.SendNotification(ctx, testConfig(), msg)

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
