/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package discord

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/friendsincode/tonelist/internal/dispatch"
)

const (
	commandTimeout   = 30 * time.Second
	maxMessageLength = 2000
	notInVoiceText   = "You must be in a voice channel to use this command"
)

// onInteractionCreate defers every command reply and then edits it with the
// outcome, so the interaction is never left open.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || b.dispatcher == nil {
		return
	}
	name := i.ApplicationCommandData().Name
	if name == cmdPing {
		b.ping(s, i)
		return
	}
	cmd, ok := dispatch.ParseCommand(name)
	if !ok {
		b.logger.Warn().Str("command", name).Str("guild_id", i.GuildID).Msg("unknown slash command")
		if err := s.InteractionRespond(i.Interaction, unknownCommandResponse(name)); err != nil {
			b.logger.Error().Err(err).Str("command", name).Msg("failed to answer unknown command")
		}
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.logger.Error().Err(err).Str("command", name).Msg("failed to defer interaction")
		return
	}

	args := argsFromInteraction(i, b.voiceChannelOf)
	var content string
	if needsVoice(cmd) && args.ChannelID == "" {
		content = notInVoiceText
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		res, err := b.dispatcher.Dispatch(ctx, dispatch.SurfaceInteractive, cmd, args)
		cancel()
		content = replyText(res, err)
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.logger.Error().Err(err).Str("command", name).Str("guild_id", i.GuildID).Msg("failed to edit interaction reply")
	}
}

func (b *Bot) ping(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("Pong! %dms", s.HeartbeatLatency().Milliseconds()),
		},
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to answer ping")
	}
}

// unknownCommandResponse answers a command this build does not register,
// such as a stale global registration.
func unknownCommandResponse(name string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("/%s is no longer supported", name),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func (b *Bot) voiceChannelOf(guildID, userID string) string {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}

func needsVoice(cmd dispatch.Command) bool {
	return cmd == dispatch.CmdJoin || cmd == dispatch.CmdEnqueue
}

// argsFromInteraction takes the guild from the interaction, the voice channel
// from the caller's voice state and the notify channel from where the command
// was typed.
func argsFromInteraction(i *discordgo.InteractionCreate, voiceChannel func(guildID, userID string) string) dispatch.Args {
	args := dispatch.Args{
		GuildID:         i.GuildID,
		NotifyChannelID: i.ChannelID,
	}

	var userID string
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	}
	if args.GuildID != "" && userID != "" {
		args.ChannelID = voiceChannel(args.GuildID, userID)
	}

	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "query":
			args.Query = opt.StringValue()
		case "index":
			idx := int(opt.IntValue())
			args.Index = &idx
		}
	}
	return args
}

// replyText renders a command outcome within Discord's message limit.
func replyText(res *dispatch.Result, err error) string {
	if err != nil {
		return dispatch.Text(err)
	}
	return clip(res.Message, maxMessageLength)
}

// clip keeps s within limit bytes without splitting a rune, closing a code
// block it cuts into.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	const fence = "```"
	if len(s) >= 2*len(fence) && s[:len(fence)] == fence {
		return prefix(s, limit-len(fence)-4) + "...\n" + fence
	}
	return prefix(s, limit-3) + "..."
}

// prefix returns at most n bytes of s, ending on a rune boundary.
func prefix(s string, n int) string {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
