// Package messenger delivers outbound WhatsApp messages through Twilio.
// Sends are queued on an asynchronous dispatcher so webhook turns never block
// on the transport; outcomes are logged, not returned to the conversation.
package messenger

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/learnsl/enrollbot/internal/config"
)

// Message is one outbound WhatsApp message.
type Message struct {
	To        string
	Body      string
	MediaURLs []string
}

// Sender delivers a single message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TwilioSender implements Sender against the Twilio messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender builds a sender from configuration.
func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.From}
}

// Send creates the message on the Twilio API.
func (s *TwilioSender) Send(_ context.Context, msg Message) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(msg.To)
	params.SetBody(msg.Body)
	if len(msg.MediaURLs) > 0 {
		params.SetMediaUrl(msg.MediaURLs)
	}

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	return nil
}
