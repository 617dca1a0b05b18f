package main

import (
	"encoding/json"
	"net/http"

	"github.com/palisadehq/palisade/internal/gate"
	"github.com/palisadehq/palisade/pkg/httpauth"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

// handleHealth reports model readiness. The path is open unless secured in
// the model.
func handleHealth(model secmodel.SecurityModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if !model.Ping() {
			status = "not ready"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status})
	}
}

// handleWhoAmI reports the identity the gate established for this request.
func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	user := gate.UserFromContext(r.Context())
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]any{"anonymous": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":  user.Username,
		"email":     user.Email,
		"superuser": user.Superuser,
	})
}

// handleLogout ends the digest session: the current user is cleared and the
// nonce is refreshed, invalidating outstanding digest responses.
func handleLogout(auth *httpauth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.Logout()
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
