// Package delivery talks to the downstream expected-arrivals API.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/transform"
)

// Client authenticates against the API and submits records with the resulting token.
type Client interface {
	Authenticate(ctx context.Context, creds Credentials) (Token, error)
	Submit(ctx context.Context, rec transform.UploadRecord, token Token) (Ack, error)
}

// Credentials is the login request body.
type Credentials struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	SystemID string `json:"systemId"`
}

// Token is an opaque bearer token.
type Token string

// Ack is an accepted submission.
type Ack struct {
	StatusCode int
	Body       string
}

// HTTPClient is the Client over net/http. Each call makes exactly one request.
type HTTPClient struct {
	loginURL  string
	uploadURL string
	http      *http.Client
	logger    *slog.Logger
}

// NewHTTPClient creates a client. A nil httpClient gets one with the given timeout.
func NewHTTPClient(loginURL, uploadURL string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		loginURL:  loginURL,
		uploadURL: uploadURL,
		http:      httpClient,
		logger:    logger,
	}
}

func (c *HTTPClient) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	raw, status, err := sendJSON(ctx, c.http, c.loginURL, creds, nil, c.logger)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	if status != http.StatusOK {
		c.logger.Error("authentication rejected", "status", status, "body", common.Truncate(raw, 512))
		return "", &AuthError{
			StatusCode: status,
			Body:       common.Truncate(raw, maxBody),
			Err:        fmt.Errorf("unexpected status %d", status),
		}
	}

	token, err := extractToken(raw)
	if err != nil {
		return "", &AuthError{StatusCode: status, Body: common.Truncate(raw, maxBody), Err: err}
	}
	c.logger.Info("authenticated", "user", creds.UserName, "system_id", creds.SystemID)
	return token, nil
}

func (c *HTTPClient) Submit(ctx context.Context, rec transform.UploadRecord, token Token) (Ack, error) {
	if token == "" {
		return Ack{}, &SubmitError{Err: errors.New("empty bearer token")}
	}
	headers := map[string]string{"Authorization": "Bearer " + string(token)}

	raw, status, err := sendJSON(ctx, c.http, c.uploadURL, rec, headers, c.logger)
	if err != nil {
		return Ack{}, &SubmitError{Err: err}
	}
	if status != http.StatusOK {
		return Ack{}, &SubmitError{
			StatusCode: status,
			Body:       common.Truncate(raw, maxBody),
			Err:        fmt.Errorf("unexpected status %d", status),
		}
	}
	return Ack{StatusCode: status, Body: common.Truncate(raw, maxBody)}, nil
}

// NewFromConfig builds the HTTP client and login credentials from configuration.
func NewFromConfig(cfg common.DeliveryConfig, logger *slog.Logger) (*HTTPClient, Credentials) {
	creds := Credentials{UserName: cfg.UserName, Password: cfg.Password, SystemID: cfg.SystemID}
	return NewHTTPClient(cfg.LoginURL, cfg.UploadURL, cfg.Timeout, nil, logger), creds
}
