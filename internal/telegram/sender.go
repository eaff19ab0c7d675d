package telegram

import (
	"context"
	"errors"
	"log"
)

// ErrDisabled is returned when sending without credentials.
var ErrDisabled = errors.New("telegram credentials missing")

// Send posts text to the configured chat using Markdown formatting. If
// Telegram rejects the markup the message is retried as plain text.
func (c *Client) Send(ctx context.Context, text string) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if c.debug {
		log.Printf("[DEBUG] Telegram send: %s", text)
	}

	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}, nil)
	if err == nil || ctx.Err() != nil {
		return err
	}
	log.Printf("Warning: Markdown send failed (%v), retrying as plain text", err)
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": c.chatID,
		"text":    text,
	}, nil)
}
