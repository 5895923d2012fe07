package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"fxhedz/internal/domain"
	"fxhedz/internal/logger"
)

const defaultAPIBase = "https://api.telegram.org"

// NotificationService reports account security events to an operations chat
type NotificationService struct {
	botToken   string
	chatID     string
	apiBase    string
	enabled    bool
	location   *time.Location
	httpClient *http.Client
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func NewNotificationService(botToken, chatID string) *NotificationService {
	enabled := botToken != "" && chatID != ""

	tz := os.Getenv("TZ")
	if tz == "" {
		tz = "UTC"
	}

	location, err := time.LoadLocation(tz)
	if err != nil {
		location = time.UTC
	}

	return &NotificationService{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		enabled:  enabled,
		location: location,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithAPIBase points the service at a different Bot API host
func (s *NotificationService) WithAPIBase(base string) *NotificationService {
	s.apiBase = base
	return s
}

// Enabled reports whether a bot token and chat are configured
func (s *NotificationService) Enabled() bool {
	return s.enabled
}

// DeviceLimitExceeded reports a sign-in refused by the device policy
func (s *NotificationService) DeviceLimitExceeded(email, deviceID string, platform domain.Platform) error {
	if !s.enabled {
		return nil // Silently skip if Telegram is not configured
	}

	message := fmt.Sprintf(
		"🚫 *DEVICE LIMIT REACHED*\n\n"+
			"👤 Account: `%s`\n"+
			"📱 Device: `%s` (%s)\n"+
			"━━━━━━━━━━━━━━━━━\n"+
			"🕒 Time: `%s`",
		email,
		logger.ShortID(deviceID),
		platform,
		time.Now().In(s.location).Format("2006-01-02 15:04:05"),
	)

	return s.sendMessage(message)
}

// DevicesReset reports that an account cleared its device bindings
func (s *NotificationService) DevicesReset(email string, removed int) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf(
		"♻️ *DEVICES RESET*\n\n"+
			"👤 Account: `%s`\n"+
			"📱 Bindings removed: `%d`\n"+
			"🕒 Time: `%s`",
		email,
		removed,
		time.Now().In(s.location).Format("2006-01-02 15:04"),
	)

	return s.sendMessage(message)
}

// sendMessage sends a message to Telegram using the Bot API
func (s *NotificationService) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	payload := telegramMessage{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	resp, err := s.httpClient.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
