package utils

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewHTTPClientDefaults(t *testing.T) {
	r := require.New(t)
	client, err := NewHTTPClient(HTTPClientConfig{})
	r.NoError(err)
	r.NotNil(client.CheckRedirect)
	r.Equal(http.ErrUseLastResponse, client.CheckRedirect(nil, nil))
	transport, ok := client.Transport.(*http.Transport)
	r.True(ok)
	r.Equal(3*time.Minute, transport.ResponseHeaderTimeout)
	r.Equal(90*time.Second, transport.IdleConnTimeout)
	r.True(transport.DisableCompression)
	// Whole-request timeout stays unset so long downloads are not cut off
	r.Zero(client.Timeout)
}

func TestNewHTTPClientBadProxy(t *testing.T) {
	r := require.New(t)
	_, err := NewHTTPClient(HTTPClientConfig{ProxyURL: "://bad"})
	r.Error(err)
}

func TestNewHTTPClientTokenFile(t *testing.T) {
	r := require.New(t)
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	r.NoError(os.WriteFile(tokenPath, []byte(`{"access_token":"abc123","token_type":"Bearer"}`), 0600))
	client, err := NewHTTPClient(HTTPClientConfig{TokenFile: tokenPath})
	r.NoError(err)
	_, ok := client.Transport.(*oauth2.Transport)
	r.True(ok)
}

func TestLoadToken(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")
	r.NoError(os.WriteFile(tokenPath, []byte(`{"access_token":"abc123","token_type":"Bearer"}`), 0600))
	token, err := LoadToken(tokenPath)
	r.NoError(err)
	r.Equal("abc123", token.AccessToken)

	bad := filepath.Join(dir, "bad.json")
	r.NoError(os.WriteFile(bad, []byte(`{}`), 0600))
	_, err = LoadToken(bad)
	r.Error(err)

	_, err = LoadToken(filepath.Join(dir, "missing.json"))
	r.Error(err)
}
