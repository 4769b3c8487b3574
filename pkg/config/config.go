package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings keys, as stored by the admin configuration layer.
const (
	KeyClientID     = "client_id"
	KeySecretKey    = "secret_key"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyXOUID        = "xouid"
	KeyRegion       = "region"
	KeyTokenTimeout = "token_timeout"
	KeyAccessToken  = "access_token"

	// Optional overrides for the region-derived hosts (sandboxes, tests).
	KeyTokenURL = "token_url"
	KeyAPIURL   = "api_url"
)

const (
	RegionEU = "eu"
	RegionUS = "us"
)

const (
	euTokenURL      = "https://api-public.eu.epsilon.com"
	euAPIURL        = "https://api.harmony.eu.epsilon.com"
	defaultTokenURL = "https://api-public.epsilon.com"
	defaultAPIURL   = "https://api.harmony.epsilon.com"
)

// ErrMissingField is returned (wrapped in *Error) when a required credential is absent or empty.
var ErrMissingField = errors.New("missing required field")

// Error reports which settings key failed validation.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("harmony config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Settings is the raw key/value configuration mapping.
type Settings map[string]string

// Config holds the validated connection settings for one operation context.
type Config struct {
	ClientID  string
	SecretKey string
	Username  string
	Password  string
	XOUID     string
	Region    string

	TokenURL string
	APIURL   string

	// Persisted token state; TokenTimeout is unix seconds, 0 when unset.
	AccessToken  string
	TokenTimeout int64
}

// Load validates settings and derives the regional base URLs.
func Load(settings Settings) (*Config, error) {
	cfg := &Config{
		ClientID:    settings[KeyClientID],
		SecretKey:   settings[KeySecretKey],
		Username:    settings[KeyUsername],
		Password:    settings[KeyPassword],
		XOUID:       settings[KeyXOUID],
		Region:      settings[KeyRegion],
		AccessToken: settings[KeyAccessToken],
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(settings[KeyTokenTimeout]); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &Error{Field: KeyTokenTimeout, Err: err}
		}
		cfg.TokenTimeout = ts
	}

	cfg.TokenURL, cfg.APIURL = baseURLs(cfg.Region)
	if v := settings[KeyTokenURL]; v != "" {
		cfg.TokenURL = strings.TrimRight(v, "/")
	}
	if v := settings[KeyAPIURL]; v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}

	return cfg, nil
}

// Validate checks the required credentials in the order the admin form lists them.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{KeyClientID, c.ClientID},
		{KeySecretKey, c.SecretKey},
		{KeyUsername, c.Username},
		{KeyPassword, c.Password},
		{KeyXOUID, c.XOUID},
	}
	for _, f := range required {
		if f.value == "" {
			return &Error{Field: f.key, Err: ErrMissingField}
		}
	}
	return nil
}

// BaseToken returns the HTTP Basic credential for the token endpoint.
func (c *Config) BaseToken() string {
	return base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.SecretKey))
}

// baseURLs picks the host pair for a region. Anything but "eu" gets the default pair.
func baseURLs(region string) (tokenURL, apiURL string) {
	if region == RegionEU {
		return euTokenURL, euAPIURL
	}
	return defaultTokenURL, defaultAPIURL
}

var envKeys = map[string]string{
	KeyClientID:     "HARMONY_CLIENT_ID",
	KeySecretKey:    "HARMONY_SECRET_KEY",
	KeyUsername:     "HARMONY_USERNAME",
	KeyPassword:     "HARMONY_PASSWORD",
	KeyXOUID:        "HARMONY_XOUID",
	KeyRegion:       "HARMONY_REGION",
	KeyTokenTimeout: "HARMONY_TOKEN_TIMEOUT",
	KeyAccessToken:  "HARMONY_ACCESS_TOKEN",
	KeyTokenURL:     "HARMONY_TOKEN_URL",
	KeyAPIURL:       "HARMONY_API_URL",
}

// FromEnv reads settings from HARMONY_* environment variables.
func FromEnv() Settings {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	s := Settings{}
	for key, env := range envKeys {
		if v := os.Getenv(env); v != "" {
			s[key] = v
		}
	}
	return s
}

// Merge returns a copy of base with every non-empty value of overlay applied.
func Merge(base, overlay Settings) Settings {
	out := make(Settings, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
