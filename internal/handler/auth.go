package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
)

const (
	adminUser      = "admin"
	maxAliasLength = 64
)

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth is middleware that checks for a valid bearer token.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.unauthorized(w, r)
			return
		}

		authSess, err := h.store.GetAuthSession(token)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
			return
		}
		if authSess == nil {
			h.unauthorized(w, r)
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil || user == nil {
			if err != nil {
				slog.Error("failed to get user", "id", authSess.UserID, "error", err)
			}
			h.unauthorized(w, r)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin checks HTTP basic credentials against the admin hash.
// Without a configured hash every request is refused.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || len(h.adminHash) == 0 || user != adminUser ||
			bcrypt.CompareHashAndPassword(h.adminHash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="interviewer"`)
			h.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "ErrUnauthorized"))
}

type profileRequest struct {
	Alias string `json:"alias"`
}

type profileResponse struct {
	UserID string `json:"user_id"`
	Alias  string `json:"alias"`
	Token  string `json:"token"`
}

// handleCreateProfile signs a candidate in with nothing but an alias.
func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	alias := strings.TrimSpace(req.Alias)
	if alias == "" || utf8.RuneCountInString(alias) > maxAliasLength {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrAliasRequired"))
		return
	}

	user, err := h.store.CreateUser(alias)
	if err != nil {
		slog.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	token, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}

	slog.Info("profile created", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, profileResponse{UserID: user.ID, Alias: user.Alias, Token: token})
}
