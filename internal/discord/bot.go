/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/dispatch"
)

// VoiceHandler receives the voice credentials Discord hands out after a join.
type VoiceHandler interface {
	HandleVoiceServerUpdate(guildID, token, endpoint string)
	HandleVoiceStateUpdate(guildID, userID, channelID, sessionID string)
}

// Config holds bot configuration
type Config struct {
	Token string
	// AppID defaults to the bot user's id.
	AppID string
	// TestGuilds get commands registered per guild, which applies instantly.
	// Empty registers globally.
	TestGuilds []string
}

// Bot is the interactive surface. It also acts as the voice gateway for the
// audio node.
type Bot struct {
	cfg        Config
	session    *discordgo.Session
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	mu    sync.RWMutex
	voice VoiceHandler
}

// New creates the bot. Nothing connects until Open, and commands are only
// served once a dispatcher is set.
func New(cfg Config, logger zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:     cfg,
		session: dg,
		logger:  logger.With().Str("component", "discord").Logger(),
	}
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceServerUpdate)
	dg.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// SetDispatcher must be called before Open.
func (b *Bot) SetDispatcher(d *dispatch.Dispatcher) {
	b.dispatcher = d
}

// SetVoiceHandler attaches the audio node. Updates arriving before are dropped.
func (b *Bot) SetVoiceHandler(h VoiceHandler) {
	b.mu.Lock()
	b.voice = h
	b.mu.Unlock()
}

func (b *Bot) voiceHandler() VoiceHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.voice
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// UserID is the bot's own user id, known once Open returned.
func (b *Bot) UserID() string {
	if b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot ready")

	appID := b.cfg.AppID
	if appID == "" {
		appID = r.User.ID
	}
	if err := b.registerCommands(appID); err != nil {
		b.logger.Error().Err(err).Msg("slash command registration failed")
	}
}

func (b *Bot) registerCommands(appID string) error {
	cmds := slashCommands()
	if len(b.cfg.TestGuilds) == 0 {
		if _, err := b.session.ApplicationCommandBulkOverwrite(appID, "", cmds); err != nil {
			return fmt.Errorf("register global commands: %w", err)
		}
		b.logger.Info().Int("commands", len(cmds)).Msg("registered global slash commands")
		return nil
	}
	for _, guildID := range b.cfg.TestGuilds {
		if _, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
			return fmt.Errorf("register commands for guild %s: %w", guildID, err)
		}
		b.logger.Info().Str("guild_id", guildID).Int("commands", len(cmds)).Msg("registered guild slash commands")
	}
	return nil
}

func (b *Bot) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if h := b.voiceHandler(); h != nil {
		h.HandleVoiceServerUpdate(e.GuildID, e.Token, e.Endpoint)
	}
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e.VoiceState == nil {
		return
	}
	if h := b.voiceHandler(); h != nil {
		h.HandleVoiceStateUpdate(e.GuildID, e.UserID, e.ChannelID, e.SessionID)
	}
}
