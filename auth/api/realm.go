package api

import (
	"context"
	"net/http"

	"github.com/andrebq/sambro/auth"
	"github.com/andrebq/sambro/internal/logutil"
	"github.com/andrebq/sambro/session"
)

const (
	CookieName = "sambro_cookie"

	authRequiredMessage = "authentication required"
)

type (
	// SecurityRealm decides which requests carry a valid session.
	SecurityRealm struct {
		svc            *auth.Service
		insecureCookie bool
	}

	userIDKey struct{}
)

func NewRealm(svc *auth.Service, allowHTTPCookie bool) *SecurityRealm {
	return &SecurityRealm{
		svc:            svc,
		insecureCookie: allowHTTPCookie,
	}
}

// Protect only calls sensitive when the request has a live session.
// Every rejection gets the same status and body.
func (s *SecurityRealm) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.Authenticate(r)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, authRequiredMessage)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		log := logutil.GetOrDefault(ctx).With().Str("user.id", userID).Logger()
		sensitive.ServeHTTP(w, r.WithContext(logutil.WithLogger(ctx, log)))
	})
}

// Authenticate returns the id of the user that owns the session
// referenced by the request cookie.
func (s *SecurityRealm) Authenticate(r *http.Request) (string, error) {
	id := SessionIDFromRequest(r)
	sess, err := s.svc.Authenticate(r.Context(), id)
	if err != nil {
		log := logutil.GetOrDefault(r.Context())
		log.Debug().Bool("cookie.present", len(id) > 0).Msg("Session not found or expired")
		return "", err
	}
	return sess.UserID, nil
}

// SessionIDFromRequest returns the session cookie value or an empty string.
func SessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// UserIDFromContext is available to handlers wrapped by Protect.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

func (s *SecurityRealm) setSessionCookie(w http.ResponseWriter, sess session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.Expires,
		HttpOnly: true,
		Secure:   !s.insecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *SecurityRealm) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.insecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
