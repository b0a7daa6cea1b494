package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/andrebq/sambro/auth"
	"github.com/andrebq/sambro/internal/logutil"
	"github.com/julienschmidt/httprouter"
)

const (
	maxBody = 1 << 20
)

type (
	errorMessage struct {
		Message string `json:"message"`
	}

	createUser struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	loginUser struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
)

// AsHandler exposes the auth service over HTTP. Registration, login and
// logout are open, everything else goes through realm.Protect.
func AsHandler(ctx context.Context, svc *auth.Service, realm *SecurityRealm) (http.Handler, error) {
	router := httprouter.New()

	router.HandlerFunc("GET", "/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "System Alive!")
	})
	router.HandlerFunc("POST", "/user", register(svc))
	router.HandlerFunc("PUT", "/login", login(svc, realm))
	router.HandlerFunc("POST", "/logout", logout(svc, realm))

	router.Handler("GET", "/user", realm.Protect(listUsers(svc)))
	router.Handler("GET", "/user/:id", realm.Protect(getUser(svc)))
	router.Handler("GET", "/me", realm.Protect(me(svc)))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nothing to see here", http.StatusNotFound)
	})
	return router, nil
}

func register(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createUser
		if err := decodeBody(w, r, &payload); err != nil {
			writeError(w, r, err)
			return
		}
		user, err := svc.Register(r.Context(), payload.Name, payload.Email, payload.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func login(svc *auth.Service, realm *SecurityRealm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loginUser
		if err := decodeBody(w, r, &payload); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := svc.Login(r.Context(), payload.Email, payload.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		realm.setSessionCookie(w, res.Session)
		writeJSON(w, http.StatusOK, res.User)
	}
}

func logout(svc *auth.Service, realm *SecurityRealm) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Logout(r.Context(), SessionIDFromRequest(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		realm.clearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func listUsers(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.ListUsers(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func getUser(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := httprouter.ParamsFromContext(r.Context()).ByName("id")
		user, err := svc.User(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func me(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		user, err := svc.User(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(out); err != nil {
		return auth.InvalidInput{Field: "body", Reason: "malformed request body"}
	}
	return nil
}

// writeError maps errors from the auth package to a status code and
// a message that is safe to send to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := auth.StatusCode(err)
	switch status {
	case http.StatusBadRequest:
		var invalid auth.InvalidInput
		errors.As(err, &invalid)
		writeMessage(w, status, invalid.Reason)
	case http.StatusUnauthorized:
		writeMessage(w, status, auth.Unauthenticated{}.Error())
	case http.StatusNotFound:
		writeMessage(w, status, "user not found")
	default:
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Msg("Internal error while handling request")
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorMessage{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "unable to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf)
}
