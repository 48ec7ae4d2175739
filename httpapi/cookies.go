package httpapi

import (
	"net/http"
	"time"
)

func (s *server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cookieMaxAge() / time.Second),
		HttpOnly: true,
		Secure:   !s.opts.InsecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.opts.InsecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *server) cookieMaxAge() time.Duration {
	if s.opts.CookieMaxAge > 0 {
		return s.opts.CookieMaxAge
	}
	return s.manager.RefreshTTL()
}

func (s *server) refreshToken(r *http.Request) string {
	c, err := r.Cookie(s.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
