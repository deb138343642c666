package utils

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
)

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	TokenFile     string
}

// NewHTTPClient builds the tuned client shared by all HTTP downloads.
// The timeout bounds dialing and response headers only; body reads are
// unbounded so large downloads are never cut off mid-stream. Redirects are
// never followed here; the download session decides what a redirect means.
func NewHTTPClient(cfg HTTPClientConfig) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		if cfg.ProxyUsername != "" {
			if cfg.ProxyPassword != "" {
				proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
			} else {
				proxyURL.User = url.User(cfg.ProxyUsername)
			}
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	var rt http.RoundTripper = transport
	if cfg.TokenFile != "" {
		token, err := LoadToken(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("error loading token file: %v", err)
		}
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   transport,
		}
	}
	return &http.Client{
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// LoadToken reads an OAuth2 bearer token from a JSON file.
func LoadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token file %s has no access_token", file)
	}
	return token, nil
}
