package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"userservice/internal/domain"
	"userservice/internal/domain/models"
	"userservice/internal/domain/services"
)

// KeycloakAdminConfig holds what the admin client needs to reach a realm.
type KeycloakAdminConfig struct {
	BaseURL      string // internal Keycloak URL
	Realm        string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// KeycloakAdminClient reads and updates users through the Keycloak admin REST API.
// It authenticates with the client-credentials grant; the token is cached and
// renewed by the oauth2 transport when it expires.
type KeycloakAdminClient struct {
	baseURL    string
	realm      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ services.IdentityProvider = (*KeycloakAdminClient)(nil)

// NewKeycloakAdminClient creates an admin client. ctx is only used by the
// token source for token requests and should outlive the client.
func NewKeycloakAdminClient(ctx context.Context, cfg KeycloakAdminConfig, logger *slog.Logger) *KeycloakAdminClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	credentials := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", cfg.BaseURL, cfg.Realm),
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// The token endpoint is called with this client; API calls go through the
	// returned oauth2 client.
	tokenClient := &http.Client{Timeout: timeout}
	httpClient := credentials.Client(context.WithValue(ctx, oauth2.HTTPClient, tokenClient))
	httpClient.Timeout = timeout

	return &KeycloakAdminClient{
		baseURL:    cfg.BaseURL,
		realm:      cfg.Realm,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *KeycloakAdminClient) usersURL() string {
	return fmt.Sprintf("%s/admin/realms/%s/users", c.baseURL, url.PathEscape(c.realm))
}

// GetUser fetches a user by id.
func (c *KeycloakAdminClient) GetUser(ctx context.Context, id string) (*models.IdentityUser, error) {
	endpoint := c.usersURL() + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create get user request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "get user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFound(fmt.Sprintf("identity provider user %s not found", id))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "get user")
	}

	var user models.IdentityUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, c.providerError("get user", fmt.Errorf("decode response: %w", err))
	}
	return &user, nil
}

// UpdateUser sends only the fields set in update. Keycloak merges the
// representation into the stored user.
func (c *KeycloakAdminClient) UpdateUser(ctx context.Context, id string, update *models.IdentityUserUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}

	endpoint := c.usersURL() + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create update user request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "update user")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		c.logger.Info("identity provider user updated", "user_id", id)
		return nil
	case http.StatusNotFound:
		return domain.NewNotFound(fmt.Sprintf("identity provider user %s not found", id))
	case http.StatusConflict:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.NewValidation(fmt.Sprintf("username or email already in use: %s", strings.TrimSpace(string(body))))
	default:
		return c.statusError(resp, "update user")
	}
}

// FindUserIDByUsername resolves an exact username to the user's id.
func (c *KeycloakAdminClient) FindUserIDByUsername(ctx context.Context, username string) (string, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("exact", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.usersURL()+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create list users request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "find user by username")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp, "find user by username")
	}

	var users []models.IdentityUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return "", c.providerError("find user by username", fmt.Errorf("decode response: %w", err))
	}

	// Keycloak stores usernames lowercased
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return u.ID, nil
		}
	}
	return "", domain.NewNotFound(fmt.Sprintf("user %q not found", username))
}

func (c *KeycloakAdminClient) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.providerError(op, err)
	}
	return resp, nil
}

func (c *KeycloakAdminClient) statusError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return c.providerError(op, fmt.Errorf("failed with status %d: %s", resp.StatusCode, string(body)))
}

func (c *KeycloakAdminClient) providerError(op string, err error) error {
	c.logger.Error("identity provider request failed", "operation", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIdentityProvider, err)
}
