package highlevel

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bartekpacia/myfox/api"
	"github.com/bartekpacia/myfox/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portal(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("password") != "secret" {
			io.WriteString(w, `{"code":"KO","msg":[["Bad credentials","error"]]}`)
			return
		}
		io.WriteString(w, `{"rdt":["https://myfox.me/home/1234",0]}`)
	})
	mux.HandleFunc("GET /home/1234", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>
<div id="userPanel"><span class="site"><a href="/home/1234">Maison</a></span></div>
<div id="masterStatus"><a><span class="icon alarm-off"></span></a></div>
</body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func config(server *httptest.Server, strategy api.Strategy, password string) *cfg.Config {
	return &cfg.Config{
		Username:             "bob@example.com",
		Password:             password,
		SiteIDs:              []int{1234},
		Strategy:             string(strategy),
		AutoAuthRetryCredits: 1,
		AuthValidity:         60,
		Portal:               cfg.Portal{BaseURL: server.URL},
	}
}

func TestConnect(t *testing.T) {
	server := portal(t)

	wrapper, err := Connect(context.Background(), config(server, api.StrategyHTMLFirst, "secret"), api.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	status, ok := wrapper.State().Get(api.LabelStatus)
	require.True(t, ok)
	assert.Equal(t, "Maison", status.(api.Home).SiteName)
}

func TestConnect_BadCredentials(t *testing.T) {
	server := portal(t)

	_, err := Connect(context.Background(), config(server, api.StrategyHTMLOnly, "wrong"), api.WithHTTPClient(server.Client()))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, api.Status(err))
}

func TestConnect_RestOnly(t *testing.T) {
	server := portal(t)

	wrapper, err := Connect(context.Background(), config(server, api.StrategyRESTOnly, "secret"))
	require.NoError(t, err)
	assert.IsType(t, &api.RestAPI{}, wrapper)
}

func TestConnect_InvalidConfig(t *testing.T) {
	_, err := Connect(context.Background(), &cfg.Config{SiteIDs: []int{1}})
	assert.ErrorContains(t, err, "MYFOX_USERNAME is not set")
}

func TestPromptPassword(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	var out bytes.Buffer

	withPassword := &cfg.Config{Username: "bob@example.com", Password: "secret"}
	require.NoError(t, PromptPassword(withPassword, f, &out))
	assert.Empty(t, out.String())

	withoutPassword := &cfg.Config{Username: "bob@example.com"}
	err = PromptPassword(withoutPassword, f, &out)
	assert.ErrorContains(t, err, "not a terminal")
}
