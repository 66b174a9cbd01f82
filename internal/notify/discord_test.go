package notify

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

type fakeWebhook struct {
	id, token string
	params    *discordgo.WebhookParams
}

func (f *fakeWebhook) WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.id, f.token, f.params = webhookID, token, data
	return nil, nil
}

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		raw     string
		id      string
		token   string
		wantErr bool
	}{
		{"https://discord.com/api/webhooks/123/abc", "123", "abc", false},
		{"https://discord.com/api/v10/webhooks/456/def/", "456", "def", false},
		{"https://discord.com/api/webhooks/123", "", "", true},
		{"https://example.com/hooks", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			id, token, err := parseWebhookURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestSessionFinalized(t *testing.T) {
	hook := &fakeWebhook{}
	d := &Discord{session: hook, webhookID: "123", token: "abc"}
	uid := "42"

	err := d.SessionFinalized(context.Background(), tablesession.Settlement{
		SessionID:   "s1",
		Currency:    "JPY",
		TotalAmount: 1000,
		FinalizedAt: time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC),
		Charges:     []tablesession.Charge{{ParticipantID: "p1", UserID: &uid, Amount: 1000}},
		Debts:       []tablesession.Debt{{DebtorID: "p2", CreditorID: "p1", Amount: 500}},
	})
	require.NoError(t, err)

	assert.Equal(t, "123", hook.id)
	assert.Equal(t, "abc", hook.token)
	require.Len(t, hook.params.Embeds, 1)
	embed := hook.params.Embeds[0]
	assert.Contains(t, embed.Description, "1000 JPY")
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "<@42>", embed.Fields[0].Value)
	assert.Equal(t, "p2 → p1: 500 JPY\n", embed.Fields[1].Value)
}
