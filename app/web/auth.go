package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	log "github.com/go-pkgz/lgr"
)

const (
	authCookieName = "reevolve-auth"
	basicAuthUser  = "admin"
)

// handleLogin checks admin password and sets auth cookie.
// Accepts JSON body {"password": "..."} or a form field.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	password := ""
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		password = req.Password
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		password = r.FormValue("password")
	}

	if password == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Password is required")
		return
	}

	// validate password against bcrypt hash
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		log.Printf("[WARN] failed admin login from %s", r.RemoteAddr)
		s.writeJSONError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    s.generateAuthToken(),
		Path:     "/",
		MaxAge:   int(s.loginTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   isSecure(r),
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged in"})
}

// handleLogout clears the auth cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // delete cookie
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   isSecure(r),
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// adminOnly checks for auth cookie or falls back to basic auth. Pass-through if no password configured.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.passwordHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		// check auth cookie
		if cookie, err := r.Cookie(authCookieName); err == nil && s.validateAuthToken(cookie.Value) {
			next.ServeHTTP(w, r)
			return
		}

		// fallback to basic auth for API clients
		if username, password, ok := r.BasicAuth(); ok && username == basicAuthUser {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="RE-EVOLVE Admin"`)
		s.writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

// generateAuthToken derives cookie value from the password hash
func (s *Server) generateAuthToken() string {
	h := sha256.Sum256([]byte(s.passwordHash + "reevolve-auth-token"))
	return hex.EncodeToString(h[:])
}

// validateAuthToken checks if the auth token is valid
func (s *Server) validateAuthToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.generateAuthToken())) == 1
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
