// Package auth serves registration, login, logout, and the current-user
// endpoint. Sessions are opaque bearer tokens, also set as a cookie for
// browser clients.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Handler serves the /api/auth endpoints.
type Handler struct {
	users      store.UserStore
	sessions   identity.SessionRepo
	auth       *identity.UserAuth
	sessionTTL time.Duration
}

func NewHandler(users store.UserStore, sessions identity.SessionRepo, auth *identity.UserAuth, sessionTTL time.Duration) *Handler {
	return &Handler{
		users:      users,
		sessions:   sessions,
		auth:       auth,
		sessionTTL: sessionTTL,
	}
}

// UserView is the wire shape of a user.
type UserView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

func viewOf(u *store.User) UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Register creates a new account. The overseer role cannot be
// self-assigned.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonBadRequest, "username and password are required")
		return
	}
	if !identity.ValidRole(req.Role) || req.Role == identity.RoleOverseer {
		api.WriteBadRequest(w, api.ReasonBadRequest, "role must be one of requester, organization, volunteer, supplier")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		api.WriteInternalError(w, "failed to process credentials")
		return
	}

	user := &store.User{
		ID:           identity.NewID(),
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			api.WriteError(w, http.StatusConflict, api.ReasonBadRequest, "username already taken")
			return
		}
		api.WriteInternalError(w, "failed to create user")
		return
	}

	api.WriteJSON(w, http.StatusCreated, viewOf(user))
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token and the authenticated user.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserView  `json:"user"`
}

// Login verifies credentials and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonBadRequest, "username and password are required")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), h.users, req.Username, req.Password)
	if err != nil {
		// Indistinguishable responses for unknown user and bad password.
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid username or password")
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		api.WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	api.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      viewOf(user),
	})
}

// Logout deletes the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ExtractToken(r)
	if token != "" {
		_ = h.sessions.Delete(r.Context(), token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me returns the authenticated caller.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	user, err := h.users.GetUser(r.Context(), ident.ID)
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session user not found")
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(user))
}

// ExtractToken gets the session token from the cookie or the Authorization
// header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie("session"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
