package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPConfig configures delivery through a JSON email API.
type HTTPConfig struct {
	Endpoint   string
	APIKey     string
	From       string
	Timeout    time.Duration
	RetryCount int
}

// HTTPTransport posts messages to an email provider's REST endpoint as
// {"from","to","subject","html"} with a bearer API key.
type HTTPTransport struct {
	client *resty.Client
	cfg    HTTPConfig
}

type sendPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("mail: endpoint required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: sender address required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPTransport{client: client, cfg: cfg}, nil
}

func (t *HTTPTransport) Deliver(ctx context.Context, msg Message) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendPayload{
			From:    t.cfg.From,
			To:      msg.To,
			Subject: msg.Subject,
			HTML:    msg.HTML,
		}).
		Post(t.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("mail: send %s: %w", msg.Template, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail: send %s: provider returned %d", msg.Template, resp.StatusCode())
	}
	return nil
}
