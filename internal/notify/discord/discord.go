// Package discord posts scale notifications to a Discord channel.
package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/semaphore/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier implements notify.Notifier for Discord. Messages go through the
// REST API; no gateway connection is opened.
type Notifier struct {
	sess      session
	channelID string
}

// Opts holds parameters for creating a Discord Notifier.
type Opts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of a real Discord session.
	Session session
}

// New creates a Discord Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		s, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = s
	}
	return &Notifier{sess: sess, channelID: opts.ChannelID}, nil
}

// Notify sends evt as an embed.
func (n *Notifier) Notify(ctx context.Context, evt notify.Event) error {
	embed := messageToEmbed(notify.Format(evt))
	if _, err := n.sess.ChannelMessageSendEmbed(n.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// messageToEmbed converts a Message to a Discord Embed.
func messageToEmbed(msg notify.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       parseHexColor(msg.Color),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
