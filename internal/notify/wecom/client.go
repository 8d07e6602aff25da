package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/OpenOA/formflow/internal/config"
)

// tokenSafetyMargin is subtracted from the advertised token lifetime so a
// cached token is refreshed before the platform actually expires it.
const tokenSafetyMargin = 200 * time.Second

// Client is a minimal WeCom (enterprise WeChat) API client covering token
// acquisition and application messages. The base URL is configurable so
// tests can point it at a local server.
type Client struct {
	baseURL string
	corpID  string
	secret  string
	agentID int
	http    *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg *config.WeComConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.APIBaseURL,
		corpID:  cfg.CorpID,
		secret:  cfg.Secret,
		agentID: cfg.AgentID,
		http:    &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken returns a cached access token, fetching a fresh one when the
// cache is empty or about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	endpoint := fmt.Sprintf("%s/gettoken?corpid=%s&corpsecret=%s",
		c.baseURL, url.QueryEscape(c.corpID), url.QueryEscape(c.secret))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.ErrCode != 0 {
		return "", fmt.Errorf("wecom token request failed: errcode=%d errmsg=%s", body.ErrCode, body.ErrMsg)
	}

	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenSafetyMargin)
	return c.token, nil
}

// invalidateToken drops the cached token so the next call fetches a new one.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// TextCard is the payload of a textcard application message.
type TextCard struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	BtnTxt      string `json:"btntxt,omitempty"`
}

type messageRequest struct {
	ToUser   string   `json:"touser"`
	MsgType  string   `json:"msgtype"`
	AgentID  int      `json:"agentid"`
	TextCard TextCard `json:"textcard"`
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// SendTextCard delivers a textcard message to one WeCom user. An expired
// cached token is refreshed and the send retried once.
func (c *Client) SendTextCard(ctx context.Context, toUser string, card TextCard) error {
	err := c.sendTextCard(ctx, toUser, card)
	if err != nil && isTokenError(err) {
		c.invalidateToken()
		err = c.sendTextCard(ctx, toUser, card)
	}
	return err
}

func (c *Client) sendTextCard(ctx context.Context, toUser string, card TextCard) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(messageRequest{
		ToUser:   toUser,
		MsgType:  "textcard",
		AgentID:  c.agentID,
		TextCard: card,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/message/send?access_token=%s", c.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode message response: %w", err)
	}
	if body.ErrCode != 0 {
		return &apiError{code: body.ErrCode, msg: body.ErrMsg}
	}
	return nil
}

type apiError struct {
	code int
	msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("wecom api error: errcode=%d errmsg=%s", e.code, e.msg)
}

// Token errors per the WeCom API: 40014 invalid token, 42001 token expired.
func isTokenError(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && (apiErr.code == 40014 || apiErr.code == 42001)
}
