package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"UCGInformation/internal/domain"
	"UCGInformation/internal/ports"
)

// DefaultAPIBase is the REST root of the chat service.
const DefaultAPIBase = "https://discord.com/api/v10"

// Notifier sends plain text to the channel mapped to each destination via the bot API.
type Notifier struct {
	botToken string
	apiBase  string
	channels map[domain.Destination]string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the bot token and destination-to-channel mapping.
func NewNotifier(botToken, apiBase string, channels map[domain.Destination]string) *Notifier {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Notifier{
		botToken: botToken,
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		channels: channels,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendText posts text to the channel behind dest.
func (n *Notifier) SendText(ctx context.Context, dest domain.Destination, text string) error {
	channelID, ok := n.channels[dest]
	if !ok || channelID == "" {
		return fmt.Errorf("no channel configured for destination %s", dest)
	}
	return n.SendToChannel(ctx, channelID, text)
}

// SendToChannel posts text to a raw channel id.
func (n *Notifier) SendToChannel(ctx context.Context, channelID, text string) error {
	if n.botToken == "" || n.client == nil {
		return fmt.Errorf("discord notifier misconfigured")
	}

	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/channels/%s/messages", n.apiBase, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+n.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return nil
}
