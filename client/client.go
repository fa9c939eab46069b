// Package client is the typed Go client for the StreamSelect auth API, plus
// a durable session layer that survives process restarts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLen = 6

// ErrInvalidToken is returned when the server rejects a refresh token. The
// session layer treats it as a forced logout.
var ErrInvalidToken = errors.New("refresh token rejected")

// AuthResponse mirrors the server's token DTO. Email is only present on
// external login, where the server resolves the provider identity to a local
// account the caller does not know in advance.
type AuthResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiration   time.Time `json:"expiration"`
	Email        string    `json:"email,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// User is the client-side session model: who is signed in plus the current
// token pair.
type User struct {
	Email        string    `json:"email"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiration   time.Time `json:"expiration"`
}

// StatusError is returned whenever the server answers with a status other
// than the one the endpoint contract promises. It carries the server's
// status text untouched; the client never tries to interpret it.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status
}

// ValidationError is raised locally, before any request is sent.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid credentials input"
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// Register creates an account. Credentials are validated locally first; no
// request leaves the process on malformed input.
func (c *Client) Register(ctx context.Context, email, password, confirmPassword string) (User, error) {
	if err := validateCredentials(email, password); err != nil {
		return User{}, err
	}
	if confirmPassword != password {
		return User{}, &ValidationError{Fields: map[string]string{"confirmPassword": "passwords do not match"}}
	}

	body := map[string]string{"email": email, "password": password, "confirmPassword": confirmPassword}
	resp, err := c.post(ctx, "/auth/register", body, http.StatusCreated)
	if err != nil {
		return User{}, err
	}

	return userFrom(email, resp), nil
}

// Login exchanges credentials for a token pair. Validated locally first.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	if err := validateCredentials(email, password); err != nil {
		return User{}, err
	}

	body := map[string]string{"email": email, "password": password}
	resp, err := c.post(ctx, "/auth/login", body, http.StatusOK)
	if err != nil {
		return User{}, err
	}

	return userFrom(email, resp), nil
}

// RefreshToken trades a refresh token for its replacement pair. A 401 means
// the token is spent, revoked, or expired and comes back as ErrInvalidToken.
func (c *Client) RefreshToken(ctx context.Context, email, refreshToken string) (User, error) {
	body := map[string]string{"email": email, "refreshToken": refreshToken}
	resp, err := c.post(ctx, "/auth/refresh-token", body, http.StatusOK)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return User{}, fmt.Errorf("%w: %s", ErrInvalidToken, statusErr.Status)
		}
		return User{}, err
	}

	return userFrom(email, resp), nil
}

// ExternalLogin exchanges a provider ID token for a local session. The
// resolved account email comes back in the response so the session can
// refresh later.
func (c *Client) ExternalLogin(ctx context.Context, idToken string) (User, error) {
	body := map[string]string{"idToken": idToken}
	resp, err := c.post(ctx, "/auth/external-login", body, http.StatusOK)
	if err != nil {
		return User{}, err
	}

	return userFrom(resp.Email, resp), nil
}

// Logout revokes the server-side session of the given access token.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, wantStatus int) (AuthResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return AuthResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return AuthResponse{}, statusError(resp)
	}

	var parsed AuthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return AuthResponse{}, fmt.Errorf("decode response from %s: %w", path, err)
	}

	return parsed, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		ErrorMessage string `json:"errorMessage"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)

	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    body.ErrorMessage,
	}
}

func userFrom(email string, resp AuthResponse) User {
	return User{
		Email:        strings.TrimSpace(strings.ToLower(email)),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiration:   resp.Expiration,
	}
}

func validateCredentials(email, password string) error {
	fields := make(map[string]string)
	if !emailRegex.MatchString(strings.TrimSpace(strings.ToLower(email))) {
		fields["email"] = "email format is invalid"
	}
	if len(password) < minPasswordLen {
		fields["password"] = "password must be at least 6 characters"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
