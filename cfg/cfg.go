// Package cfg provides configuration of the tools, read from config files and
// environment variables.
package cfg

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const envPrefix = "MYFOX_"

// Config for the tools.
type Config struct {
	Username             string `koanf:"username"`
	Password             string `koanf:"password"`
	SiteIDs              []int  `koanf:"site_ids"`
	Strategy             string `koanf:"strategy"`
	AutoAuthRetryCredits int    `koanf:"auto_auth_retry_credits"`
	AuthValidity         int    `koanf:"auth_validity"`

	Portal Portal `koanf:"portal"`

	// Scenarios maps names to scenario ids, so that they can be played by
	// name.
	Scenarios map[string]int `koanf:"scenarios"`
	Domotics  map[string]int `koanf:"domotics"`
	Heatings  map[string]int `koanf:"heatings"`

	Daemon Daemon `koanf:"daemon"`
}

type Portal struct {
	BaseURL           string `koanf:"base_url"`
	LoginPath         string `koanf:"login_path"`
	RedirectForbidden string `koanf:"redirect_forbidden"`
}

type Daemon struct {
	Port int `koanf:"port"`
	// Refresh is the interval between reads of the home page.
	Refresh time.Duration `koanf:"refresh"`
	// PassphraseHash is the bcrypt hash of the passphrase clients send.
	PassphraseHash string `koanf:"passphrase_hash"`

	HomeKit  HomeKit  `koanf:"homekit"`
	InfluxDB InfluxDB `koanf:"influxdb"`
	MQTT     MQTT     `koanf:"mqtt"`
}

type HomeKit struct {
	Name     string `koanf:"name"`
	PIN      string `koanf:"pin"`
	StoreDir string `koanf:"store_dir"`
}

type InfluxDB struct {
	URL    string `koanf:"url"`
	Token  string `koanf:"token"`
	Org    string `koanf:"org"`
	Bucket string `koanf:"bucket"`
}

type MQTT struct {
	Broker   string `koanf:"broker"`
	ClientID string `koanf:"client_id"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Topic    string `koanf:"topic"`
}

var defaults = map[string]any{
	"strategy":                  string(api.StrategyHTMLFirst),
	"auto_auth_retry_credits":   api.DefaultAutoAuthRetryCredits,
	"auth_validity":             api.DefaultAuthValidity,
	"portal.base_url":           api.DefaultPortal().BaseURL,
	"portal.login_path":         api.DefaultPortal().LoginPath,
	"portal.redirect_forbidden": api.DefaultPortal().RedirectForbidden,
	"daemon.port":               9001,
	"daemon.refresh":            "5m",
	"daemon.homekit.name":       "Myfox",
	"daemon.mqtt.client_id":     "myfoxd",
	"daemon.mqtt.topic":         "myfox/state",
}

// DefaultPaths returns the config files read by [Load], lowest priority
// first.
func DefaultPaths() []string {
	paths := []string{"/etc/myfox/config.toml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "myfox", "config.toml"))
	}
	return paths
}

// Load reads defaults, then each of paths that exists, then MYFOX_*
// environment variables. Nested keys are separated by a double underscore in
// variable names, e.g. MYFOX_DAEMON__PORT.
func Load(paths ...string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for _, p := range paths {
		if err := k.Load(file.Provider(p), parserFor(p)); err != nil {
			slog.Debug("failed to load config file", slog.String("path", p), slog.Any("error", err))
		} else {
			slog.Debug("loaded config file", slog.String("path", p))
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &config, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return toml.Parser()
	}
}

// Verify verifies that the required keys are set. The password may be asked
// for later.
func (c *Config) Verify() error {
	if c.Username == "" {
		return fmt.Errorf("MYFOX_USERNAME is not set")
	}

	if len(c.SiteIDs) == 0 {
		return fmt.Errorf("MYFOX_SITE_IDS is not set")
	}

	return nil
}

// Options converts c to validated wrapper options.
func (c *Config) Options() (api.Options, error) {
	if err := c.Verify(); err != nil {
		return api.Options{}, err
	}

	return api.NewOptions(
		api.WithStrategy(api.Strategy(c.Strategy)),
		api.WithAutoAuthRetryCredits(c.AutoAuthRetryCredits),
		api.WithAuthValidity(c.AuthValidity),
		api.WithSiteIDs(c.SiteIDs...),
		api.WithCredentials(c.Username, c.Password),
	)
}

// APIPortal returns the portal location to pass to [api.WithPortal].
func (c *Config) APIPortal() api.Portal {
	portal := api.DefaultPortal()
	if c.Portal.BaseURL != "" {
		portal.BaseURL = c.Portal.BaseURL
	}
	if c.Portal.LoginPath != "" {
		portal.LoginPath = c.Portal.LoginPath
	}
	if c.Portal.RedirectForbidden != "" {
		portal.RedirectForbidden = c.Portal.RedirectForbidden
	}
	return portal
}

func (c Config) String() string {
	return fmt.Sprint("username:", c.Username, " password:", strings.Repeat("*", len(c.Password)), " site_ids:", c.SiteIDs)
}
