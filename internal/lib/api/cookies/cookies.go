package cookies

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Options controls the security attributes of the session cookies. Secure is
// configurable so local setups without TLS still work.
type Options struct {
	Secure bool
	Domain string
}

func Set(w http.ResponseWriter, opts Options, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, sessionCookie(opts, AccessTokenCookie, accessToken, accessTTL))
	http.SetCookie(w, sessionCookie(opts, RefreshTokenCookie, refreshToken, refreshTTL))
}

func Clear(w http.ResponseWriter, opts Options) {
	http.SetCookie(w, sessionCookie(opts, AccessTokenCookie, "", -time.Hour))
	http.SetCookie(w, sessionCookie(opts, RefreshTokenCookie, "", -time.Hour))
}

func sessionCookie(opts Options, name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
