package adapter

import (
	"context"

	"github.com/bwmarrin/discordgo"

	kit "aprelay/internal/transport"
)

const choiceLimit = 25

// responder answers one interaction through the interaction webhook.
type responder struct {
	s *discordgo.Session
	i *discordgo.Interaction
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r *responder) Reply(ctx context.Context, text string, ephemeral bool) error {
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         truncate(text, contentLimit),
			Flags:           flags(ephemeral),
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	}, discordgo.WithContext(ctx))
}

func (r *responder) Defer(ctx context.Context, ephemeral bool) error {
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	}, discordgo.WithContext(ctx))
}

func (r *responder) Edit(ctx context.Context, text string) error {
	text = truncate(text, contentLimit)
	_, err := r.s.InteractionResponseEdit(r.i, &discordgo.WebhookEdit{
		Content:         &text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) Followup(ctx context.Context, text string, ephemeral bool) error {
	_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
		Content:         truncate(text, contentLimit),
		Flags:           flags(ephemeral),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) Choices(ctx context.Context, choices []kit.Choice) error {
	if len(choices) > choiceLimit {
		choices = choices[:choiceLimit]
	}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, c := range choices {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: truncate(c.Name, 100), Value: c.Value})
	}
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: out},
	}, discordgo.WithContext(ctx))
}
