package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCookiesKeepsColonNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("Cookie", `dst:e1=c1; plain="quoted"; bad name=x`)
	req.Header.Add("Cookie", "dst:e2=c2")

	cookies := ReadCookies(req)
	require.Len(t, cookies, 3)
	assert.Equal(t, "dst:e1", cookies[0].Name)
	assert.Equal(t, "c1", cookies[0].Value)
	assert.Equal(t, "plain", cookies[1].Name)
	assert.Equal(t, "quoted", cookies[1].Value)
	assert.Equal(t, "dst:e2", cookies[2].Name)
}

func TestFormatSetCookie(t *testing.T) {
	set := FormatSetCookie(&http.Cookie{
		Name:     "dst:e1",
		Value:    "c1",
		Domain:   ".example.com",
		MaxAge:   31536000,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	assert.Equal(t, "dst:e1=c1; Path=/; Domain=example.com; Max-Age=31536000; Secure; SameSite=Lax", set)

	expired := FormatSetCookie(&http.Cookie{Name: "dst:e1", MaxAge: -1, HttpOnly: true})
	assert.Equal(t, "dst:e1=; Path=/; Expires=Thu, 01 Jan 1970 00:00:00 GMT; Max-Age=0; HttpOnly", expired)

	assert.Equal(t, "a=bc; Path=/x", FormatSetCookie(&http.Cookie{Name: "a", Value: "b;\"c", Path: "/x"}))
}
