package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Notify posts text to a channel.
func (b *Bot) Notify(ctx context.Context, channelID, text string) error {
	if _, err := b.session.ChannelMessageSend(channelID, clip(text, maxMessageLength), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}
