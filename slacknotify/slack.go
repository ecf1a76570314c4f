// Package slacknotify relays messages to a Slack channel. One pass-through
// post call; nothing else.
package slacknotify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Client posts messages via the Slack Web API.
type Client struct {
	api     *slack.Client
	channel string
	log     *zap.Logger
}

// New returns a client that defaults to the given channel. Prefer channel
// ids over names; ids survive renames.
func New(token, channel string, log *zap.Logger) *Client {
	return &Client{api: slack.New(token), channel: channel, log: log}
}

// Send posts text to a channel, optionally as a thread reply, and returns
// the message timestamp. An empty channel falls back to the default.
func (c *Client) Send(ctx context.Context, channel, text, threadTS string) (string, error) {
	if channel == "" {
		channel = c.channel
	}
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("post slack message: %w", err)
	}
	c.log.Info("slack message sent", zap.String("channel", channel), zap.String("ts", ts))
	return ts, nil
}
