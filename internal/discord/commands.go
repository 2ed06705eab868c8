package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/friendsincode/tonelist/internal/dispatch"
)

const cmdPing = "ping"

var descriptions = map[dispatch.Command]string{
	dispatch.CmdJoin:    "Join your voice channel",
	dispatch.CmdLeave:   "Leave the voice channel",
	dispatch.CmdEnqueue: "Add a song or playlist to the queue",
	dispatch.CmdRemove:  "Remove a track from the queue",
	dispatch.CmdSkip:    "Skip the current track",
	dispatch.CmdShuffle: "Shuffle the upcoming tracks",
	dispatch.CmdQueue:   "Show the queue",
}

func slashCommands() []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(dispatch.Commands)+1)
	for _, c := range dispatch.Commands {
		cmd := &discordgo.ApplicationCommand{
			Name:        string(c),
			Description: descriptions[c],
			Type:        discordgo.ChatApplicationCommand,
		}
		switch c {
		case dispatch.CmdEnqueue:
			cmd.Options = []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Link or search terms",
				Required:    true,
			}}
		case dispatch.CmdRemove:
			cmd.Options = []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "index",
				Description: "Queue position as listed by /queue",
				Required:    true,
			}}
		}
		cmds = append(cmds, cmd)
	}
	return append(cmds, &discordgo.ApplicationCommand{
		Name:        cmdPing,
		Description: "Check bot latency",
		Type:        discordgo.ChatApplicationCommand,
	})
}
