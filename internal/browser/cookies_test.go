package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sites = []string{"x.com", "twitter.com"}

func TestSanitizeCookiesSameSite(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		secure bool
		want   string
	}{
		{name: "strict", raw: `"Strict"`, want: "Strict"},
		{name: "lowercase lax", raw: `"lax"`, want: "Lax"},
		{name: "extension no_restriction", raw: `"no_restriction"`, secure: true, want: "None"},
		{name: "none without secure", raw: `"None"`, want: "Lax"},
		{name: "unspecified", raw: `"unspecified"`, want: "Lax"},
		{name: "null", raw: `null`, want: "Lax"},
		{name: "missing", raw: ``, want: "Lax"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sameSite := ""
			if tc.raw != "" {
				sameSite = `, "sameSite": ` + tc.raw
			}
			secure := "false"
			if tc.secure {
				secure = "true"
			}
			blob := `[{"name": "auth_token", "value": "v", "domain": ".x.com", "secure": ` + secure + sameSite + `}]`

			cookies, err := SanitizeCookies(blob, sites)
			require.NoError(t, err)
			require.Len(t, cookies, 1)
			assert.Equal(t, tc.want, cookies[0].SameSite)
		})
	}
}

func TestSanitizeCookiesStripsInternalFieldsAndForeignSites(t *testing.T) {
	blob := `[
		{"name": "auth_token", "value": "a", "domain": ".x.com", "path": "/", "hostOnly": false,
		 "storeId": "0", "session": false, "id": 3, "expirationDate": 1767225600.5, "httpOnly": true, "secure": true},
		{"name": "ct0", "value": "b", "domain": "twitter.com", "expires": 1767225600},
		{"name": "tracker", "value": "c", "domain": ".ads.example.com"},
		{"name": "", "value": "d", "domain": ".x.com"},
		{"name": "nodomain", "value": "e"}
	]`

	cookies, err := SanitizeCookies(blob, sites)
	require.NoError(t, err)
	assert.Equal(t, []Cookie{
		{Name: "auth_token", Value: "a", Domain: ".x.com", Path: "/", Expires: 1767225600.5, HTTPOnly: true, Secure: true, SameSite: "Lax"},
		{Name: "ct0", Value: "b", Domain: "twitter.com", Path: "/", Expires: 1767225600, SameSite: "Lax"},
	}, cookies)
}

func TestSanitizeCookiesMatchesSubdomains(t *testing.T) {
	cookies, err := SanitizeCookies(`[{"name": "a", "value": "1", "domain": "api.x.com"}]`, sites)
	require.NoError(t, err)
	assert.Len(t, cookies, 1)
}

func TestSanitizeCookiesNoAllowListKeepsAll(t *testing.T) {
	cookies, err := SanitizeCookies(`[{"name": "a", "value": "1", "domain": "example.org"}]`, nil)
	require.NoError(t, err)
	assert.Len(t, cookies, 1)
}

func TestSanitizeCookiesWrappedExport(t *testing.T) {
	cookies, err := SanitizeCookies(`{"cookies": [{"name": "a", "value": "1", "domain": "x.com"}]}`, sites)
	require.NoError(t, err)
	assert.Len(t, cookies, 1)
}

func TestSanitizeCookiesErrors(t *testing.T) {
	for name, blob := range map[string]string{
		"empty":          "  ",
		"not json":       "auth_token=abc",
		"nothing usable": `[{"name": "t", "value": "1", "domain": "example.org"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := SanitizeCookies(blob, sites)
			assert.Error(t, err)
		})
	}
}

func TestCookieToParam(t *testing.T) {
	p := Cookie{Name: "a", Value: "1", Domain: ".x.com", Path: "/", Expires: 1700000000, Secure: true, SameSite: "None"}.toParam()
	assert.Equal(t, proto.NetworkCookieSameSiteNone, p.SameSite)
	assert.Equal(t, proto.TimeSinceEpoch(1700000000), p.Expires)

	session := Cookie{Name: "b", Domain: "x.com", SameSite: "Lax"}.toParam()
	assert.Zero(t, session.Expires)
}
