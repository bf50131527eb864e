package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.line.me"

// ErrTokenMissing 在未配置 channel access token 时返回。
var ErrTokenMissing = errors.New("line channel access token is not configured")

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client 调用 LINE Messaging API 的 push 接口。
type Client struct {
	http    httpDoer
	baseURL string
	token   string
}

func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		http:  &http.Client{Timeout: timeout},
		token: strings.TrimSpace(token),
	}
	c.SetBaseURL(baseURL)
	return c
}

func (c *Client) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
		return
	}
	c.http = client
}

func (c *Client) SetBaseURL(base string) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	c.baseURL = base
}

// Push 向群组或用户推送一条文本消息。
func (c *Client) Push(ctx context.Context, to, text string) error {
	if c.token == "" {
		return ErrTokenMissing
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("push target is empty")
	}

	body, err := json.Marshal(pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call line push api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read line push response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("line push api returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("line push api returned %d", resp.StatusCode)
	}
	return nil
}
