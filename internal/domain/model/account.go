// Package model holds the domain types for managed platform accounts,
// their credentials, and the action accounting log.
package model

import (
	"fmt"
	"net/url"
	"time"
)

// ProxyBinding is an account's fixed egress-proxy assignment. It is stable
// for the account's lifetime so the platform observes a consistent network
// identity across the session. A zero binding means direct egress.
type ProxyBinding struct {
	URL string
}

// IsZero reports whether no proxy is bound.
func (p ProxyBinding) IsZero() bool { return p.URL == "" }

// Parse validates the binding and returns the proxy URL. Only http and https
// proxies with an explicit host are accepted.
func (p ProxyBinding) Parse() (*url.URL, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("proxy url %q has no host", p.URL)
	}
	return u, nil
}

// Account is an external platform identity under management. The surrounding
// application owns the account record; this module reads and writes only the
// credential, warmup, and proxy fields.
type Account struct {
	ID              string
	Handle          string
	WarmupStartedAt time.Time // zero means the account is past warmup
	Proxy           ProxyBinding
	Credential      *Credential // nil when no credential is stored
	CreatedAt       time.Time
}
