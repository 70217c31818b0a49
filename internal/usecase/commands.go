package usecase

import (
	"context"
	"log/slog"
	"strings"

	"UCGInformation/internal/ports"
)

const (
	// DefaultCommandPrefix starts every bot command.
	DefaultCommandPrefix = "-"
	// LivenessReply answers the liveness command.
	LivenessReply = "UCG Information Bot is Working!"

	livenessCommand = "test"
)

// Commands answers chat commands in the known destination channels only.
type Commands struct {
	prefix   string
	channels map[string]struct{}
	replier  ports.ChannelReplier
	logger   *slog.Logger
}

// NewCommands restricts the command surface to channelIDs.
func NewCommands(prefix string, channelIDs []string, replier ports.ChannelReplier, log *slog.Logger) *Commands {
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	channels := make(map[string]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		if id != "" {
			channels[id] = struct{}{}
		}
	}
	return &Commands{prefix: prefix, channels: channels, replier: replier, logger: log}
}

// Handle processes one chat message. It never touches emission bookkeeping.
func (c *Commands) Handle(ctx context.Context, channelID, content string, fromBot bool) {
	if fromBot || c.replier == nil {
		return
	}
	name, ok := c.parse(content)
	if !ok || name != livenessCommand {
		return
	}
	if _, known := c.channels[channelID]; !known {
		return
	}

	if err := c.replier.SendToChannel(ctx, channelID, LivenessReply); err != nil {
		c.logger.Warn("command reply failed", "channel", channelID, "error", err)
	}
}

func (c *Commands) parse(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, c.prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, c.prefix))
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}
