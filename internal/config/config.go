// Package config handles calbot configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve without a system zoneinfo

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultCalendlyURL is the public Calendly v2 API root.
const DefaultCalendlyURL = "https://api.calendly.com"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/calbot/config.yaml, /etc/calbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "calbot", "config.yaml"))
	}

	paths = append(paths, "/etc/calbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all calbot configuration. It is loaded once at startup
// and passed by value or pointer into constructors; nothing reads the
// environment after Load returns.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	Calendly  CalendlyConfig `yaml:"calendly"`
	LLM       LLMConfig      `yaml:"llm"`
	Web       WebConfig      `yaml:"web"`
	Audit     AuditConfig    `yaml:"audit"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Timezone  string         `yaml:"timezone"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
}

// ListenConfig defines an HTTP listener.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// Addr returns the host:port form used by net/http.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// CalendlyConfig defines the scheduling provider connection. Events are
// always scoped to one organization and one user, both given as the full
// resource URIs Calendly returns from /users/me.
type CalendlyConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	Token        string        `yaml:"token" validate:"required"`
	Organization string        `yaml:"organization" validate:"required,url"`
	User         string        `yaml:"user" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
}

// LLMConfig defines the model provider.
type LLMConfig struct {
	Provider  string        `yaml:"provider" validate:"required,oneof=openai anthropic"`
	APIKey    string        `yaml:"api_key" validate:"required"`
	Model     string        `yaml:"model" validate:"required"`
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxTokens int64         `yaml:"max_tokens" validate:"gte=0"`
}

// WebConfig defines the chat frontend served by "calbot web".
// MaxExchanges caps each browser's transcript; zero keeps everything.
type WebConfig struct {
	Listen       ListenConfig  `yaml:"listen"`
	BackendURL   string        `yaml:"backend_url" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	Title        string        `yaml:"title"`
	MaxExchanges int           `yaml:"max_exchanges" validate:"gte=0"`
}

// AuditConfig defines the cancellation ledger. An empty Path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// Configured reports whether the ledger should be opened.
func (a AuditConfig) Configured() bool {
	return a.Path != ""
}

// MQTTConfig defines the optional broker used to announce cancellations.
type MQTTConfig struct {
	Broker      string `yaml:"broker" validate:"omitempty,url"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Configured reports whether a broker was given.
func (m MQTTConfig) Configured() bool {
	return m.Broker != ""
}

// Load reads configuration from a YAML file, expands ${VAR} references
// against the environment, and fills in defaults. It does not validate;
// call [Config.Validate] before using the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration with every optional field defaulted
// and every required credential empty.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8888
	}
	if c.Calendly.BaseURL == "" {
		c.Calendly.BaseURL = DefaultCalendlyURL
	}
	c.Calendly.BaseURL = strings.TrimRight(c.Calendly.BaseURL, "/")
	if c.Calendly.Timeout == 0 {
		c.Calendly.Timeout = 30 * time.Second
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.Web.Listen.Port == 0 {
		c.Web.Listen.Port = 8501
	}
	if c.Web.BackendURL == "" {
		c.Web.BackendURL = fmt.Sprintf("http://127.0.0.1:%d", c.Listen.Port)
	}
	if c.Web.Timeout == 0 {
		// The backend makes two model calls and up to two Calendly
		// calls per message; leave room for all of them.
		c.Web.Timeout = 2*c.LLM.Timeout + 2*c.Calendly.Timeout
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "calbot"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "calbot"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

// Validate checks that every required setting is present and every
// enumerated setting is known. A missing credential is a startup error,
// never a per-request one.
func (c *Config) Validate() error {
	return c.validate()
}

// ValidateFrontend checks only what "calbot web" needs. The frontend
// talks to the backend over HTTP and never sees provider credentials.
func (c *Config) ValidateFrontend() error {
	return c.validate("Web.Listen.Port", "Web.BackendURL", "Web.Timeout", "Web.MaxExchanges")
}

// ValidateCalendlyAuth checks only the Calendly connection settings, for
// commands that run before the organization and user URIs are known.
func (c *Config) ValidateCalendlyAuth() error {
	return c.validate("Calendly.BaseURL", "Calendly.Token", "Calendly.Timeout")
}

func (c *Config) validate(fields ...string) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	var err error
	if len(fields) == 0 {
		err = v.Struct(c)
	} else {
		err = v.StructPartial(c, fields...)
	}
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid config: unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// yamlPaths maps validator namespaces to the YAML keys users write.
var yamlPaths = map[string]string{
	"Config.Listen.Port":           "listen.port",
	"Config.Calendly.BaseURL":      "calendly.base_url",
	"Config.Calendly.Token":        "calendly.token",
	"Config.Calendly.Organization": "calendly.organization",
	"Config.Calendly.User":         "calendly.user",
	"Config.Calendly.Timeout":      "calendly.timeout",
	"Config.LLM.Provider":          "llm.provider",
	"Config.LLM.APIKey":            "llm.api_key",
	"Config.LLM.Model":             "llm.model",
	"Config.LLM.BaseURL":           "llm.base_url",
	"Config.LLM.Timeout":           "llm.timeout",
	"Config.LLM.MaxTokens":         "llm.max_tokens",
	"Config.Web.Listen.Port":       "web.listen.port",
	"Config.Web.BackendURL":        "web.backend_url",
	"Config.Web.Timeout":           "web.timeout",
	"Config.Web.MaxExchanges":      "web.max_exchanges",
	"Config.MQTT.Broker":           "mqtt.broker",
}

func describeFieldError(fe validator.FieldError) string {
	key, ok := yamlPaths[fe.Namespace()]
	if !ok {
		key = fe.Namespace()
	}
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "url":
		return fmt.Sprintf("%s must be a URL (got %q)", key, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got %q)", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value())
	}
}
