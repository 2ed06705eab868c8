/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/friendsincode/tonelist/internal/voice"
)

// JoinVoice sends the gateway voice state update. The resulting voice server
// and voice state events reach the VoiceHandler.
func (b *Bot) JoinVoice(_ context.Context, guildID, channelID string) error {
	if err := b.session.ChannelVoiceJoinManual(guildID, channelID, false, true); err != nil {
		return fmt.Errorf("voice join %s: %w", channelID, err)
	}
	return nil
}

func (b *Bot) LeaveVoice(_ context.Context, guildID string) error {
	if err := b.session.ChannelVoiceJoinManual(guildID, "", false, true); err != nil {
		return fmt.Errorf("voice leave: %w", err)
	}
	return nil
}

// CheckVoiceChannel verifies the guild is known and channelID is one of its
// voice channels.
func (b *Bot) CheckVoiceChannel(guildID, channelID string) error {
	return checkVoiceChannel(b.session.State, guildID, channelID)
}

func checkVoiceChannel(state *discordgo.State, guildID, channelID string) error {
	if _, err := state.Guild(guildID); err != nil {
		return voice.ErrGuildNotFound
	}
	ch, err := state.Channel(channelID)
	if err != nil || ch.GuildID != guildID {
		return voice.ErrChannelNotFound
	}
	if ch.Type != discordgo.ChannelTypeGuildVoice && ch.Type != discordgo.ChannelTypeGuildStageVoice {
		return fmt.Errorf("%w: %s is not a voice channel", voice.ErrChannelNotFound, channelID)
	}
	return nil
}

// IsMember reports whether userID belongs to guildID, asking the API when the
// member is not cached.
func (b *Bot) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	if _, err := b.session.State.Member(guildID, userID); err == nil {
		return true, nil
	}
	_, err := b.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil &&
		(restErr.Response.StatusCode == http.StatusNotFound || restErr.Response.StatusCode == http.StatusForbidden) {
		return false, nil
	}
	return false, fmt.Errorf("fetch member: %w", err)
}
