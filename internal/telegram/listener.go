package telegram

import (
	"context"
	"log"
	"strings"
	"time"
)

// Update is the subset of a Telegram update the listener reads.
type Update struct {
	UpdateID int `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// CommandHandler answers a slash command. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, command string) string

// Listen long-polls for commands until ctx is done. Messages from chats
// other than the configured one are logged and ignored.
func (c *Client) Listen(ctx context.Context, handler CommandHandler) {
	if !c.Enabled() {
		log.Println("Telegram Listener: Credentials missing, disabled.")
		return
	}
	log.Println("Telegram Listener: Started")
	defer log.Println("Telegram Listener: Stopped")

	offset := 0
	for ctx.Err() == nil {
		updates, err := c.getUpdates(ctx, offset, 50)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Telegram Listener Error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1

			if update.Message.Chat.ID != c.chatID {
				log.Printf("Warning: unauthorized command from %s (chat %d): %s",
					update.Message.From.Username, update.Message.Chat.ID, update.Message.Text)
				continue
			}

			text := strings.TrimSpace(update.Message.Text)
			if !strings.HasPrefix(text, "/") {
				continue
			}
			log.Printf("Command received: %s", text)
			if reply := handler(ctx, text); reply != "" {
				if err := c.Send(ctx, reply); err != nil {
					log.Printf("Warning: command reply failed: %v", err)
				}
			}
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset, timeoutSec int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}
