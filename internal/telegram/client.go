package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the Telegram Bot API root.
const DefaultAPIURL = "https://api.telegram.org"

// Client talks to the Bot API for a single authorized chat.
type Client struct {
	token   string
	chatID  int64
	baseURL string
	http    *http.Client
	debug   bool
}

// NewClient returns a client for token and chatID. A client with missing
// credentials is returned disabled rather than as an error.
func NewClient(token, chatID string) *Client {
	id, _ := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	return &Client{
		token:   strings.TrimSpace(token),
		chatID:  id,
		baseURL: DefaultAPIURL,
		http:    &http.Client{Timeout: 75 * time.Second},
	}
}

// WithBaseURL points the client at another API root (tests).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// WithDebug logs every outgoing message.
func (c *Client) WithDebug(on bool) *Client {
	c.debug = on
	return c
}

// Enabled reports whether both token and chat ID are set.
func (c *Client) Enabled() bool {
	return c != nil && c.token != "" && c.chatID != 0
}

// ChatID is the only chat allowed to issue commands.
func (c *Client) ChatID() int64 {
	return c.chatID
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// the URL carries the token, keep it out of logs
		return fmt.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("telegram %s: status %s: %w", method, resp.Status, err)
	}
	if !r.Ok {
		return fmt.Errorf("telegram %s: %s (code %d)", method, r.Description, r.ErrorCode)
	}
	if out != nil {
		return json.Unmarshal(r.Result, out)
	}
	return nil
}
