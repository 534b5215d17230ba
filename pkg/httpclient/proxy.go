package httpclient

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// proxySettings is a resolved proxy: the scrubbed URL to dial through and
// the Proxy-Authorization header value extracted from embedded credentials.
type proxySettings struct {
	URL        *url.URL
	AuthHeader string
}

// resolveProxy decides which proxy, if any, requests to targetURL should
// use. An explicit proxy URL wins. Otherwise the standard environment
// variables are consulted, with NO_PROXY exemptions applied to the target
// host.
func resolveProxy(explicit, targetURL string) (*proxySettings, error) {
	raw := explicit
	if raw == "" {
		target, err := url.Parse(targetURL)
		if err != nil || target.Host == "" {
			target = nil
		}
		raw = proxyFromEnvironment(target)
	}
	if raw == "" {
		return nil, nil
	}
	return parseProxyURL(raw)
}

// proxyFromEnvironment mirrors the conventional proxy variables: the
// HTTPS_PROXY value for https targets, HTTP_PROXY for http, with lowercase
// fallbacks, gated by NO_PROXY.
func proxyFromEnvironment(target *url.URL) string {
	if target == nil {
		return ""
	}
	if shouldBypassProxy(target.Hostname(), getEnvAny("NO_PROXY", "no_proxy")) {
		return ""
	}

	if target.Scheme == "http" {
		return getEnvAny("HTTP_PROXY", "http_proxy")
	}
	return getEnvAny("HTTPS_PROXY", "https_proxy")
}

func getEnvAny(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// shouldBypassProxy evaluates NO_PROXY entries against a hostname:
// "*" exempts everything, an entry with a leading dot matches the domain
// and its subdomains, a CIDR entry matches IP targets, anything else must
// match the host exactly.
func shouldBypassProxy(host, noProxy string) bool {
	if host == "" || noProxy == "" {
		return false
	}
	host = strings.ToLower(host)
	ip := net.ParseIP(host)

	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}

		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(host, entry) || host == strings.TrimPrefix(entry, ".") {
				return true
			}
			continue
		}

		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if ip != nil && cidr.Contains(ip) {
				return true
			}
			continue
		}

		// Entries may carry a port; compare host parts only.
		if h, _, err := net.SplitHostPort(entry); err == nil {
			entry = h
		}
		if host == entry {
			return true
		}
	}
	return false
}

// parseProxyURL validates a proxy URL, pulls embedded credentials out into
// a Proxy-Authorization value, and scrubs them from the returned URL.
func parseProxyURL(raw string) (*proxySettings, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q has no host", raw)
	}

	settings := &proxySettings{}
	if u.User != nil {
		user := u.User.Username()
		pass, _ := u.User.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		settings.AuthHeader = "Basic " + credentials

		scrubbed := *u
		scrubbed.User = nil
		u = &scrubbed
	}
	settings.URL = u
	return settings, nil
}
