package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wishdo/backend"
)

// wireUser mirrors the server's user JSON representation.
type wireUser struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w *wireUser) toUser() backend.User {
	return backend.User{
		ID:        w.ID,
		Name:      w.Name,
		Email:     w.Email,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// authResponse decodes a {token, user} reply.
type authResponse struct {
	Token string   `json:"token"`
	User  wireUser `json:"user"`
}

// decodeAuth reads an auth response body.
func decodeAuth(resp *http.Response) (*backend.AuthResponse, error) {
	var wire authResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	return &backend.AuthResponse{
		Token: wire.Token,
		User:  wire.User.toUser(),
	}, nil
}

// Login exchanges credentials for a token and user record.
func (c *Client) Login(ctx context.Context, email, password string) (*backend.AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	return decodeAuth(resp)
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, name, email, password string) (*backend.AuthResponse, error) {
	body := map[string]string{"name": name, "email": email, "password": password}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/register", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	return decodeAuth(resp)
}

// Me fetches the authenticated user's record.
func (c *Client) Me(ctx context.Context) (*backend.User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var wire wireUser
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	user := wire.toUser()
	return &user, nil
}

// ProfileUpdates holds the changeable account fields.
type ProfileUpdates struct {
	Name     *string
	Email    *string
	Password *string
}

// UpdateMe patches the authenticated user's profile.
func (c *Client) UpdateMe(ctx context.Context, u ProfileUpdates) (*backend.User, error) {
	body := map[string]interface{}{}
	if u.Name != nil {
		body["name"] = *u.Name
	}
	if u.Email != nil {
		body["email"] = *u.Email
	}
	if u.Password != nil {
		body["password"] = *u.Password
	}

	resp, err := c.doRequest(ctx, http.MethodPatch, "/auth/me", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var wire wireUser
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	user := wire.toUser()
	return &user, nil
}
