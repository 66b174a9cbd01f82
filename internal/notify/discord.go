package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

// Minimal session interface for executing webhooks.
type webhookSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts a summary of each finalized session to a channel webhook.
// It implements tablesession.Notifier.
type Discord struct {
	session   webhookSession
	webhookID string
	token     string
}

func NewDiscord(webhookURL string) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Discord{session: s, webhookID: id, token: token}, nil
}

// parseWebhookURL extracts id and token from .../api/webhooks/{id}/{token}.
func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("invalid webhook url: %q", raw)
}

func (d *Discord) SessionFinalized(ctx context.Context, s tablesession.Settlement) error {
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, finalizedMessage(s), discordgo.WithContext(ctx))
	return err
}

func finalizedMessage(s tablesession.Settlement) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:       "Table session finalized",
		Description: fmt.Sprintf("Session `%s` closed with a total of %s.", s.SessionID, formatAmount(s.TotalAmount, s.Currency)),
		Timestamp:   s.FinalizedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, c := range s.Charges {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Pays " + formatAmount(c.Amount, s.Currency),
			Value:  participantLabel(c.ParticipantID, c.UserID),
			Inline: true,
		})
	}
	if len(s.Debts) > 0 {
		var b strings.Builder
		for _, debt := range s.Debts {
			fmt.Fprintf(&b, "%s → %s: %s\n", debt.DebtorID, debt.CreditorID, formatAmount(debt.Amount, s.Currency))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Settlements", Value: b.String()})
	}
	return &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
}

func participantLabel(participantID string, userID *string) string {
	if userID != nil && *userID != "" {
		return fmt.Sprintf("<@%s>", *userID)
	}
	return participantID
}

func formatAmount(amount int64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%d", amount)
	}
	return fmt.Sprintf("%d %s", amount, currency)
}
