// CLAUDE:SUMMARY Defines authwatch config structs, parses the YAML file, applies defaults and env overrides.
// Package config handles authwatch configuration from a YAML file, a .env
// file and AUTHWATCH_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/authwatch/internal/listing"
)

// Config is the top-level authwatch configuration.
type Config struct {
	Target   TargetConfig    `yaml:"target"`
	Storage  StorageConfig   `yaml:"storage"`
	Listing  listing.Rule    `yaml:"listing"`
	Poll     PollConfig      `yaml:"poll"`
	Inject   InjectConfig    `yaml:"inject"`
	Verify   VerifyConfig    `yaml:"verify"`
	Browser  BrowserConfig   `yaml:"browser"`
	Channels []ChannelConfig `yaml:"channels"`
	Admin    AdminConfig     `yaml:"admin"`
	// Greeting is the reply to /start.
	Greeting string `yaml:"greeting"`

	Env Env `yaml:"-"`
}

// TargetConfig names the application being watched.
type TargetConfig struct {
	Origin        string `yaml:"origin"`
	LoginSelector string `yaml:"login_selector"` // present only once logged in, headful
	ReadySelector string `yaml:"ready_selector"` // present only once logged in, headless
	Route         string `yaml:"route"`          // page holding the list; defaults to origin
	// LoginWait bounds the login marker probe after the operator confirms.
	LoginWait time.Duration `yaml:"login_wait"`
}

// StorageConfig controls what is captured and where snapshots are kept.
type StorageConfig struct {
	Databases  []string `yaml:"databases"`
	SnapshotDB string   `yaml:"snapshot_db"` // empty disables persistence
	Keep       int      `yaml:"keep"`
}

// PollConfig controls the monitoring loop.
type PollConfig struct {
	Interval         time.Duration `yaml:"interval"`
	DeliveryTimeout  time.Duration `yaml:"delivery_timeout"`
	SendRate         float64       `yaml:"send_rate"` // messages per second, 0 = unlimited
	SendBurst        int           `yaml:"send_burst"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// InjectConfig controls the replay of a snapshot into a headless tab.
type InjectConfig struct {
	// StepTimeout bounds navigation and each storage restore step.
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// VerifyConfig controls the headless login check.
type VerifyConfig struct {
	Mode              string        `yaml:"mode"` // reload | navigate
	Timeout           time.Duration `yaml:"timeout"`
	DismissSelector   string        `yaml:"dismiss_selector"`
	DismissTimeout    time.Duration `yaml:"dismiss_timeout"`
	ArtifactDir       string        `yaml:"artifact_dir"`
	ArtifactName      string        `yaml:"artifact_name"`
	SuccessScreenshot string        `yaml:"success_screenshot"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote string `yaml:"remote"`
	Bin    string `yaml:"bin"`
	// MemoryLimit is the JS heap size in bytes that triggers a recycle.
	// Defaults to 1 GiB when the key is absent; 0 disables.
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"` // 0 disables recycling
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// ChannelConfig declares one messaging channel. Config is passed to the
// platform factory as JSON.
type ChannelConfig struct {
	Name     string         `yaml:"name"`
	Platform string         `yaml:"platform"` // telegram | webhook
	Config   map[string]any `yaml:"config"`
}

// AdminConfig controls the operator HTTP surface.
type AdminConfig struct {
	Listen string `yaml:"listen"` // empty disables
}

// Env holds the values read from AUTHWATCH_* variables. Set values win over
// the file.
type Env struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	AdminListen   string `envconfig:"ADMIN_LISTEN"`
	Origin        string `envconfig:"ORIGIN"`
	SnapshotDB    string `envconfig:"SNAPSHOT_DB"`
}

const defaultMemoryLimit = 1 << 30

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Browser:  BrowserConfig{MemoryLimit: defaultMemoryLimit},
		Channels: []ChannelConfig{{Name: "telegram", Platform: "telegram"}},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	// Keys absent from data keep these values.
	cfg := Config{Browser: BrowserConfig{MemoryLimit: defaultMemoryLimit}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Target.Origin == "" {
		c.Target.Origin = "https://trade.padre.gg"
	}
	if c.Target.LoginSelector == "" {
		c.Target.LoginSelector = "#button-top-bar-options-popover"
	}
	if c.Target.ReadySelector == "" {
		c.Target.ReadySelector = "#button-solana-global-wallet-select"
	}
	if c.Target.LoginWait <= 0 {
		c.Target.LoginWait = 5 * time.Second
	}
	if len(c.Storage.Databases) == 0 {
		c.Storage.Databases = []string{"firebaseLocalStorageDb"}
	}
	if c.Storage.Keep <= 0 {
		c.Storage.Keep = 5
	}
	if c.Listing.Item == "" {
		c.Listing = listing.DefaultRule()
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 5 * time.Second
	}
	if c.Poll.DeliveryTimeout <= 0 {
		c.Poll.DeliveryTimeout = 10 * time.Second
	}
	if c.Poll.FailureThreshold <= 0 {
		c.Poll.FailureThreshold = 3
	}
	if c.Verify.Mode == "" {
		c.Verify.Mode = "reload"
	}
	if c.Verify.Timeout <= 0 {
		c.Verify.Timeout = 15 * time.Second
	}
	if c.Verify.DismissSelector == "" {
		c.Verify.DismissSelector = ".css-ognuvg"
	}
	if c.Verify.DismissTimeout <= 0 {
		c.Verify.DismissTimeout = 5 * time.Second
	}
	if c.Verify.ArtifactDir == "" {
		c.Verify.ArtifactDir = "."
	}
	if c.Verify.ArtifactName == "" {
		c.Verify.ArtifactName = "headless_error_page"
	}
	if c.Inject.StepTimeout <= 0 {
		c.Inject.StepTimeout = 15 * time.Second
	}
	if c.Greeting == "" {
		c.Greeting = "Subscribed. New items will be posted here."
	}
}

// LoadEnv loads envFile (when it exists) into the process environment, then
// reads AUTHWATCH_* variables and folds them into c. A missing envFile is
// not an error.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process("authwatch", &c.Env); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}

	if c.Env.Origin != "" {
		c.Target.Origin = c.Env.Origin
	}
	if c.Env.AdminListen != "" {
		c.Admin.Listen = c.Env.AdminListen
	}
	if c.Env.SnapshotDB != "" {
		c.Storage.SnapshotDB = c.Env.SnapshotDB
	}
	return nil
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.Origin)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("config: target.origin %q is not an absolute http(s) URL", c.Target.Origin)
	}
	if c.Target.LoginSelector == "" || c.Target.ReadySelector == "" {
		return errors.New("config: target selectors must not be empty")
	}
	switch c.Verify.Mode {
	case "reload", "navigate":
	default:
		return fmt.Errorf("config: verify.mode %q: want reload or navigate", c.Verify.Mode)
	}
	if c.Browser.MemoryLimit < 0 {
		return errors.New("config: browser.memory_limit must not be negative")
	}
	if c.Poll.SendRate < 0 {
		return errors.New("config: poll.send_rate must not be negative")
	}
	if c.Listing.Name == "" || c.Listing.KeyTemplate == "" {
		return errors.New("config: listing needs name and key_template")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("config: channels[%d]: missing name", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("config: channels[%d]: duplicate name %q", i, ch.Name)
		}
		seen[ch.Name] = true
		switch ch.Platform {
		case "telegram":
			if c.Env.TelegramToken == "" && ch.Config["bot_token"] == nil {
				return fmt.Errorf("config: channel %q: no bot token (set AUTHWATCH_TELEGRAM_TOKEN)", ch.Name)
			}
		case "webhook":
		default:
			return fmt.Errorf("config: channel %q: unknown platform %q", ch.Name, ch.Platform)
		}
	}
	return nil
}

// Route returns the monitored page URL.
func (c *Config) Route() string {
	if c.Target.Route == "" {
		return c.Target.Origin
	}
	return c.Target.Route
}

// RawConfig renders the factory config for one channel, with environment
// secrets filled in where the file left them empty.
func (c *Config) RawConfig(ch ChannelConfig) (json.RawMessage, error) {
	m := make(map[string]any, len(ch.Config)+1)
	for k, v := range ch.Config {
		m[k] = v
	}
	switch ch.Platform {
	case "telegram":
		if _, ok := m["bot_token"]; !ok && c.Env.TelegramToken != "" {
			m["bot_token"] = c.Env.TelegramToken
		}
	case "webhook":
		if _, ok := m["secret"]; !ok && c.Env.WebhookSecret != "" {
			m["secret"] = c.Env.WebhookSecret
		}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("config: channel %q: %w", ch.Name, err)
	}
	return raw, nil
}
