package auth

import (
	"net/http"
	"time"
)

// Cookie names used by the web gate.
const (
	CookieIDToken      = "CognitoIdToken"
	CookieAccessToken  = "CognitoAccessToken"
	CookieRefreshToken = "CognitoRefreshToken"
)

// SetCookies writes the credential cookies: HttpOnly, Secure, SameSite=Strict,
// valid for CredentialLifetime.
func SetCookies(w http.ResponseWriter, creds Credentials, now time.Time) {
	for name, value := range map[string]string{
		CookieIDToken:      creds.IDToken,
		CookieAccessToken:  creds.AccessToken,
		CookieRefreshToken: creds.RefreshToken,
	} {
		if value == "" {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Expires:  now.Add(CredentialLifetime),
			MaxAge:   int(CredentialLifetime.Seconds()),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// ClearCookies expires the credential cookies.
func ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{CookieIDToken, CookieAccessToken, CookieRefreshToken} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// CredentialsFromRequest reads the credential cookies.
func CredentialsFromRequest(r *http.Request) (Credentials, bool) {
	var creds Credentials
	if c, err := r.Cookie(CookieIDToken); err == nil {
		creds.IDToken = c.Value
	}
	if c, err := r.Cookie(CookieAccessToken); err == nil {
		creds.AccessToken = c.Value
	}
	if c, err := r.Cookie(CookieRefreshToken); err == nil {
		creds.RefreshToken = c.Value
	}
	return creds, creds.IDToken != ""
}
