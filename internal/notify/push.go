package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

// PushMessage is the payload sent to every device token.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushResult summarizes one multi-token send. InvalidTokens lists device
// tokens the delivery provider reported as unregistered; callers prune
// them from the recipient's stored token set.
type PushResult struct {
	SentCount     int
	FailedCount   int
	InvalidTokens []string
}

// Pusher delivers push notifications.
type Pusher interface {
	SendPush(ctx context.Context, tokens []string, msg PushMessage) (PushResult, error)
}

// DisabledPusher drops every push. Used when no delivery credentials are
// configured (local development, tests).
type DisabledPusher struct{}

func (DisabledPusher) SendPush(_ context.Context, tokens []string, _ PushMessage) (PushResult, error) {
	return PushResult{FailedCount: len(tokens)}, nil
}

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// FCMClient sends through the FCM HTTP v1 API, one request per token,
// behind a shared token-bucket limiter.
type FCMClient struct {
	endpoint   string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

// NewFCMClient builds a client from service-account credentials JSON.
func NewFCMClient(credentialsJSON []byte, projectID string, logger *zerolog.Logger) (*FCMClient, error) {
	creds, err := google.CredentialsFromJSON(context.Background(), credentialsJSON, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	return &FCMClient{
		endpoint:   fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", projectID),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     creds.TokenSource,
		limiter:    rate.NewLimiter(rate.Limit(20), 30),
		logger:     logger,
	}, nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmErrorBody struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// SendPush delivers the message to each token independently. A per-token
// failure never aborts the remaining tokens.
func (c *FCMClient) SendPush(ctx context.Context, tokens []string, msg PushMessage) (PushResult, error) {
	var result PushResult
	if len(tokens) == 0 {
		return result, nil
	}

	accessToken, err := c.tokens.Token()
	if err != nil {
		return result, fmt.Errorf("fcm access token: %w", err)
	}

	for _, deviceToken := range tokens {
		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}

		invalid, err := c.sendOne(ctx, accessToken.AccessToken, deviceToken, msg)
		switch {
		case invalid:
			result.FailedCount++
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		case err != nil:
			result.FailedCount++
			c.logger.Error().Err(err).Msg("fcm send failed")
		default:
			result.SentCount++
		}
	}

	return result, nil
}

// sendOne returns invalid=true when FCM reports the token as unregistered
// or malformed, which callers treat as a prune signal rather than an error.
func (c *FCMClient) sendOne(ctx context.Context, accessToken, deviceToken string, msg PushMessage) (invalid bool, err error) {
	payload, err := json.Marshal(fcmRequest{
		Message: fcmMessage{
			Token:        deviceToken,
			Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
		},
	})
	if err != nil {
		return false, fmt.Errorf("marshal fcm message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fcm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return false, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var fcmErr fcmErrorBody
	_ = json.Unmarshal(body, &fcmErr)

	if resp.StatusCode == http.StatusNotFound || fcmErr.Error.Status == "UNREGISTERED" {
		return true, nil
	}
	for _, d := range fcmErr.Error.Details {
		if d.ErrorCode == "UNREGISTERED" || d.ErrorCode == "INVALID_ARGUMENT" {
			return true, nil
		}
	}

	return false, fmt.Errorf("fcm status %d: %s", resp.StatusCode, fcmErr.Error.Message)
}
