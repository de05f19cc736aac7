package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type Config struct {
	Environment string
	DatabaseURL string
	TablePrefix string
	ServerHost  string
	ServerPort  int
	HealthPort  int
	CORSOrigins string
	// Keycloak
	KeycloakURL          string // External base URL, as seen by clients
	KeycloakInternalURL  string // Base URL used for server-to-server calls
	KeycloakRealm        string
	KeycloakClientID     string
	KeycloakClientSecret string
	KeycloakIssuer       string // Optional; checked against the iss claim when set
	KeycloakAudience     string // Optional; checked against the aud claim when set
	// Collaborators
	ContentServiceURL string
	// Timeouts for upstream calls made while authenticating a request
	JWKSFetchTimeout time.Duration
	ProvisionTimeout time.Duration
	// Logging
	LogDir      string
	LogMaxFiles int
}

// Load reads the configuration from the environment. Call Validate (or
// ValidateDatabase for commands that only touch storage) before use.
func Load() *Config {
	keycloakURL := strings.TrimRight(getEnv("KEYCLOAK_URL", ""), "/")

	return &Config{
		Environment:          getEnv("ENVIRONMENT", "dev"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		TablePrefix:          getEnv("TABLE_PREFIX", ""),
		ServerHost:           getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:           getEnvInt("SERVER_PORT", 3000),
		HealthPort:           getEnvInt("HEALTH_PORT", 3001),
		CORSOrigins:          getEnv("CORS_ORIGINS", "*"),
		KeycloakURL:          keycloakURL,
		KeycloakInternalURL:  strings.TrimRight(getEnv("KEYCLOAK_INTERNAL_URL", keycloakURL), "/"),
		KeycloakRealm:        getEnv("KEYCLOAK_REALM", ""),
		KeycloakClientID:     getEnv("KEYCLOAK_CLIENT_ID", ""),
		KeycloakClientSecret: getEnv("KEYCLOAK_CLIENT_SECRET", ""),
		KeycloakIssuer:       getEnv("KEYCLOAK_ISSUER", ""),
		KeycloakAudience:     getEnv("KEYCLOAK_AUDIENCE", ""),
		ContentServiceURL:    strings.TrimRight(getEnv("CONTENT_SERVICE_URL", ""), "/"),
		JWKSFetchTimeout:     getEnvDuration("JWKS_FETCH_TIMEOUT", 5*time.Second),
		ProvisionTimeout:     getEnvDuration("PROVISION_TIMEOUT", 5*time.Second),
		LogDir:               getEnv("LOG_DIR", ""),
		LogMaxFiles:          getEnvInt("LOG_MAX_FILES", 10),
	}
}

// Validate checks that required settings are present and well formed.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Environment, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.ServerPort, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.HealthPort, validation.Required, validation.Min(1), validation.Max(65535),
			validation.NotIn(c.ServerPort).Error("must differ from SERVER_PORT")),
		validation.Field(&c.KeycloakURL, validation.Required, is.RequestURL),
		validation.Field(&c.KeycloakInternalURL, validation.Required, is.RequestURL),
		validation.Field(&c.KeycloakRealm, validation.Required),
		validation.Field(&c.ContentServiceURL, is.RequestURL),
		validation.Field(&c.JWKSFetchTimeout, validation.Required),
		validation.Field(&c.ProvisionTimeout, validation.Required),
	)
}

// ValidateDatabase checks only what storage commands such as migrate need.
func (c *Config) ValidateDatabase() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Environment, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.DatabaseURL, validation.Required),
	)
}

// JWKSURL is the realm's certs endpoint, reached over the internal URL.
func (c *Config) JWKSURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", c.KeycloakInternalURL, c.KeycloakRealm)
}

// ListenAddr is the API server address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// HealthAddr is the health and metrics server address.
func (c *Config) HealthAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.HealthPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to the default when the value is unset or not a number.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("5s", "250ms").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
