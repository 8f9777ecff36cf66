package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlConfig = `
username = "bob@example.com"
password = "from-file"
site_ids = [1234]

[scenarios]
night = 12
morning = 13

[daemon]
port = 8080
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, string(api.StrategyHTMLFirst), config.Strategy)
	assert.Equal(t, api.DefaultAutoAuthRetryCredits, config.AutoAuthRetryCredits)
	assert.Equal(t, api.DefaultAuthValidity, config.AuthValidity)
	assert.Equal(t, 9001, config.Daemon.Port)
	assert.Equal(t, 5*time.Minute, config.Daemon.Refresh)
	assert.Equal(t, "myfox/state", config.Daemon.MQTT.Topic)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	p := writeFile(t, "config.toml", tomlConfig)
	t.Setenv("MYFOX_PASSWORD", "from-env")
	t.Setenv("MYFOX_DAEMON__INFLUXDB__BUCKET", "home")

	config, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", config.Username)
	assert.Equal(t, "from-env", config.Password, "environment overrides files")
	assert.Equal(t, []int{1234}, config.SiteIDs)
	assert.Equal(t, map[string]int{"night": 12, "morning": 13}, config.Scenarios)
	assert.Equal(t, 8080, config.Daemon.Port)
	assert.Equal(t, "home", config.Daemon.InfluxDB.Bucket)
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "config.yaml", "username: alice@example.com\nsite_ids: [1, 2]\nstrategy: htmlOnly\n")

	config, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", config.Username)
	assert.Equal(t, []int{1, 2}, config.SiteIDs)
	assert.Equal(t, "htmlOnly", config.Strategy)
}

func TestConfig_Verify(t *testing.T) {
	config := &Config{SiteIDs: []int{1}}
	assert.EqualError(t, config.Verify(), "MYFOX_USERNAME is not set")

	config = &Config{Username: "bob@example.com"}
	assert.EqualError(t, config.Verify(), "MYFOX_SITE_IDS is not set")

	config.SiteIDs = []int{1}
	assert.NoError(t, config.Verify())
}

func TestConfig_Options(t *testing.T) {
	config := &Config{
		Username:             "bob@example.com",
		Password:             "secret",
		SiteIDs:              []int{1234},
		Strategy:             string(api.StrategyHTMLOnly),
		AutoAuthRetryCredits: 2,
		AuthValidity:         60,
	}

	opts, err := config.Options()
	require.NoError(t, err)
	assert.Equal(t, api.StrategyHTMLOnly, opts.APIStrategy)
	assert.Equal(t, 2, opts.AutoAuthRetryCredits)
	assert.Equal(t, 60, opts.AuthValidity)
	assert.True(t, opts.HasSiteID(1234))
	require.NotNil(t, opts.AccountCredentials)
	assert.Equal(t, "secret", opts.AccountCredentials.Password)

	config.Strategy = "telepathy"
	_, err = config.Options()
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConfig_APIPortal(t *testing.T) {
	config := &Config{Portal: Portal{BaseURL: "http://localhost:8080"}}

	portal := config.APIPortal()
	assert.Equal(t, "http://localhost:8080", portal.BaseURL)
	assert.Equal(t, api.DefaultPortal().LoginPath, portal.LoginPath)
}

func TestConfig_String(t *testing.T) {
	config := Config{Username: "bob@example.com", Password: "secret", SiteIDs: []int{1}}
	assert.NotContains(t, config.String(), "secret")
}
