package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tailbeacon/pkg/auth"
)

// AdminUser is the only account; its password is a bcrypt hash from config.
const AdminUser = "admin"

const tokenTTL = 24 * time.Hour

// Authenticator gates the API behind JWTs. With no admin hash configured the
// API is open.
type Authenticator struct {
	Signer    *auth.Signer
	AdminHash string
}

func NewAuthenticator(signer *auth.Signer, adminHash string) *Authenticator {
	return &Authenticator{Signer: signer, AdminHash: adminHash}
}

func (a *Authenticator) enabled() bool { return a != nil && a.AdminHash != "" }

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *Authenticator) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !a.enabled() {
		http.Error(w, "auth disabled", http.StatusNotFound)
		return
	}
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Username != AdminUser || !auth.CheckPassword(a.AdminHash, req.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := a.Signer.Generate(req.Username, tokenTTL)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Middleware requires a valid Bearer token when auth is enabled. Websocket
// clients that cannot set headers may pass ?token= instead.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled() {
			next(w, r)
			return
		}
		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := a.Signer.Parse(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
