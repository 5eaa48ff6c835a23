package adapter

import (
	"strconv"

	"github.com/bwmarrin/discordgo"

	kit "aprelay/internal/transport"
)

// Discord message limits.
const (
	contentLimit     = 2000
	titleLimit       = 256
	descriptionLimit = 4096
	fieldNameLimit   = 256
	fieldValueLimit  = 1024
	mentionUserLimit = 100

	embedColor = 0x5865f2

	permManageGuild int64 = 1 << 5
)

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}

func isTextChannel(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildVoice,
		discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeDM,
		discordgo.ChannelTypeGroupDM:
		return true
	}
	return false
}

func toChannel(ch *discordgo.Channel) kit.Channel {
	return kit.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name, Text: isTextChannel(ch.Type)}
}

func toMessageSend(msg kit.OutgoingMessage) *discordgo.MessageSend {
	users := msg.Mentions
	if len(users) > mentionUserLimit {
		users = users[:mentionUserLimit]
	}
	out := &discordgo.MessageSend{
		Content: truncate(msg.Content, contentLimit),
		// Only listed users may be pinged; roles and @everyone never are.
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: users},
	}
	for _, e := range msg.Embeds {
		embed := &discordgo.MessageEmbed{
			Title:       truncate(e.Title, titleLimit),
			Description: truncate(e.Description, descriptionLimit),
			Color:       embedColor,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  truncate(f.Name, fieldNameLimit),
				Value: truncate(f.Value, fieldValueLimit),
			})
		}
		out.Embeds = append(out.Embeds, embed)
	}
	if len(msg.Buttons) > 0 {
		row := discordgo.ActionsRow{}
		for _, b := range msg.Buttons {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: b.ActionID,
			})
		}
		out.Components = []discordgo.MessageComponent{row}
	}
	return out
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func toInteraction(i *discordgo.Interaction) (kit.Interaction, bool) {
	in := kit.Interaction{GuildID: i.GuildID, ChannelID: i.ChannelID, UserID: userID(i)}
	switch i.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		data := i.ApplicationCommandData()
		in.Kind = kit.InteractionCommand
		if i.Type == discordgo.InteractionApplicationCommandAutocomplete {
			in.Kind = kit.InteractionAutocomplete
		}
		in.Command = data.Name
		in.Options = toOptions(data.Options)
	case discordgo.InteractionMessageComponent:
		in.Kind = kit.InteractionButton
		in.ActionID = i.MessageComponentData().CustomID
	default:
		return kit.Interaction{}, false
	}
	return in, true
}

// toOptions converts option values by hand: while autocompleting, Discord
// sends partial input as strings regardless of the declared type.
func toOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) []kit.Option {
	out := make([]kit.Option, 0, len(opts))
	for _, o := range opts {
		opt := kit.Option{Name: o.Name, Focused: o.Focused, Value: o.Value}
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			opt.Type = kit.OptionString
		case discordgo.ApplicationCommandOptionInteger:
			opt.Type = kit.OptionInteger
			switch v := o.Value.(type) {
			case float64:
				opt.Value = int64(v)
			case string:
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					opt.Value = n
				}
			}
		case discordgo.ApplicationCommandOptionBoolean:
			opt.Type = kit.OptionBoolean
		case discordgo.ApplicationCommandOptionChannel:
			opt.Type = kit.OptionChannel
		case discordgo.ApplicationCommandOptionUser:
			opt.Type = kit.OptionUser
		default:
			continue
		}
		out = append(out, opt)
	}
	return out
}

var optionTypes = map[kit.OptionType]discordgo.ApplicationCommandOptionType{
	kit.OptionString:  discordgo.ApplicationCommandOptionString,
	kit.OptionInteger: discordgo.ApplicationCommandOptionInteger,
	kit.OptionBoolean: discordgo.ApplicationCommandOptionBoolean,
	kit.OptionChannel: discordgo.ApplicationCommandOptionChannel,
	kit.OptionUser:    discordgo.ApplicationCommandOptionUser,
}

func toApplicationCommands(cmds []kit.CommandSpec) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		ac := &discordgo.ApplicationCommand{Name: c.Name, Description: c.Description}
		if c.ManageGuild {
			perm := permManageGuild
			ac.DefaultMemberPermissions = &perm
		}
		for _, o := range c.Options {
			ac.Options = append(ac.Options, &discordgo.ApplicationCommandOption{
				Type:         optionTypes[o.Type],
				Name:         o.Name,
				Description:  o.Description,
				Required:     o.Required,
				Autocomplete: o.Autocomplete,
			})
		}
		out = append(out, ac)
	}
	return out
}
