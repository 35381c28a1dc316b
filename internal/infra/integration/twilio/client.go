package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
)

const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

type Client struct {
	HTTPClient *http.Client
	accountSID string
	authToken  string
	from       string
	baseURL    string
	logger     logrus.FieldLogger
}

func NewClient(accountSID, authToken, from, baseURL string, logger logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.WithField("integration", "twilio"),
	}
}

// SendSMS posts one message. The caller owns retries: a send is not
// idempotent, so only failures that never reached Twilio are transient.
func (c *Client) SendSMS(ctx context.Context, input SendMessageInput) (*SendResult, error) {
	if c.accountSID == "" || c.authToken == "" || c.from == "" {
		return nil, entity.NewFatal("twilio.send", fmt.Errorf("twilio credentials not configured"))
	}

	form := url.Values{}
	form.Set("To", input.To)
	form.Set("From", c.from)
	form.Set("Body", input.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, entity.NewFatal("twilio.send", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, entity.NewTransient("twilio.send", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "code": apiErr.Code}).Warn(apiErr.Message)
		}
		return nil, entity.ClassifyHTTPStatus("twilio.send", resp.StatusCode, string(body))
	}

	var result SendResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, entity.NewFatal("twilio.send", fmt.Errorf("decode: %w", err))
	}

	c.logger.WithFields(logrus.Fields{"sid": result.MessageID, "status": result.Status}).Info("sms sent")
	return &result, nil
}
