package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dlps55195/x-bot-worker/internal/logging"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Cookie is a sanitized session cookie ready for injection.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64 // unix seconds; 0 for a session cookie
	HTTPOnly bool
	Secure   bool
	SameSite string // Strict, Lax or None
}

// rawCookie accepts both the automation-export shape ("expires") and the
// browser-extension export shape ("expirationDate"). Fields not listed here
// (hostOnly, storeId, session, id, ...) are browser-internal and dropped.
type rawCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	Expires        *float64 `json:"expires"`
	ExpirationDate *float64 `json:"expirationDate"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         bool     `json:"secure"`
	SameSite       *string  `json:"sameSite"`
}

const defaultSameSite = "Lax"

// SanitizeCookies parses a profile's credential blob. Same-site values outside
// Strict/Lax/None are coerced to Lax, SameSite=None without Secure becomes
// Lax, and cookies for sites outside allowedSites (compared by registrable
// domain) are dropped. An empty allowedSites keeps every domain.
func SanitizeCookies(blob string, allowedSites []string) ([]Cookie, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, fmt.Errorf("empty cookie blob")
	}

	var raws []rawCookie
	if err := json.Unmarshal([]byte(blob), &raws); err != nil {
		// Some exports wrap the array: {"cookies": [...]}
		var wrapped struct {
			Cookies []rawCookie `json:"cookies"`
		}
		if werr := json.Unmarshal([]byte(blob), &wrapped); werr != nil || wrapped.Cookies == nil {
			return nil, fmt.Errorf("parse cookie blob: %w", err)
		}
		raws = wrapped.Cookies
	}

	allowed := make(map[string]bool, len(allowedSites))
	for _, site := range allowedSites {
		allowed[strings.ToLower(strings.TrimPrefix(site, "."))] = true
	}

	log := logging.Get(logging.CategoryBrowser)
	out := make([]Cookie, 0, len(raws))
	for _, r := range raws {
		if r.Name == "" || r.Domain == "" {
			log.Debug("dropping cookie without name or domain", zap.String("name", r.Name))
			continue
		}
		if len(allowed) > 0 && !allowed[registrableDomain(r.Domain)] {
			log.Debug("dropping cookie for foreign site",
				zap.String("name", r.Name), zap.String("domain", r.Domain))
			continue
		}

		c := Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			HTTPOnly: r.HTTPOnly,
			Secure:   r.Secure,
			SameSite: normalizeSameSite(r.SameSite),
		}
		if c.Path == "" {
			c.Path = "/"
		}
		switch {
		case r.Expires != nil && *r.Expires > 0:
			c.Expires = *r.Expires
		case r.ExpirationDate != nil && *r.ExpirationDate > 0:
			c.Expires = *r.ExpirationDate
		}
		if c.SameSite == "None" && !c.Secure {
			c.SameSite = defaultSameSite
		}
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no usable cookies in blob (%d parsed)", len(raws))
	}
	return out, nil
}

func normalizeSameSite(v *string) string {
	if v == nil {
		return defaultSameSite
	}
	switch strings.ToLower(strings.TrimSpace(*v)) {
	case "strict":
		return "Strict"
	case "lax":
		return "Lax"
	case "none", "no_restriction":
		return "None"
	default:
		return defaultSameSite
	}
}

func registrableDomain(domain string) string {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(d); err == nil {
		return etld1
	}
	return d
}

func (c Cookie) toParam() *proto.NetworkCookieParam {
	p := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: proto.NetworkCookieSameSite(c.SameSite),
	}
	if c.Expires > 0 {
		p.Expires = proto.TimeSinceEpoch(c.Expires)
	}
	return p
}
