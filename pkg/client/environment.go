package client

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment selects the API server.
type Environment string

const (
	Test Environment = "test"
	Prod Environment = "prod"
)

var environmentHosts = map[Environment]string{
	Test: "test.ledgerpay.com",
	Prod: "ledgerpay.com",
}

// ParseEnvironment accepts an environment name ("test" or "prod"), a bare host name, or a full
// base URL.
func ParseEnvironment(s string) (Environment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty environment")
	}
	if env := Environment(strings.ToLower(s)); environmentHosts[env] != "" {
		return env, nil
	}
	if _, err := baseURL(s); err != nil {
		return "", err
	}
	return Environment(s), nil
}

// BaseURL returns the URL that request paths are appended to, e.g. "https://ledgerpay.com/".
func (e Environment) BaseURL() (string, error) {
	if host, ok := environmentHosts[e]; ok {
		return "https://" + host + "/", nil
	}
	return baseURL(string(e))
}

func baseURL(s string) (string, error) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid environment %q: %w", s, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("invalid environment %q: unsupported scheme %s", s, u.Scheme)
	}
	if u.Host == "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("invalid environment %q", s)
	}
	return strings.TrimSuffix(u.String(), "/") + "/", nil
}
