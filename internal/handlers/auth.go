package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/authz"
	"github.com/receiptly/team-api/internal/config"
	"github.com/receiptly/team-api/internal/models"
	"github.com/receiptly/team-api/internal/repository"
)

type AuthHandler struct {
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	manager       *access.Manager
	jwtSecret     string
	logger        zerolog.Logger
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(db *sql.DB, manager *access.Manager, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:         repository.NewUserRepository(db),
		subscriptions: repository.NewSubscriptionRepository(db),
		manager:       manager,
		jwtSecret:     cfg.JWTSecret,
		logger:        logger,
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		http.Error(w, "Invalid email address", http.StatusBadRequest)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create user: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Every account holder starts on the free tier; the payment pipeline
	// upgrades the row later.
	if _, err := h.subscriptions.UpsertSubscription(r.Context(), models.DefaultSubscription(user.ID)); err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to seed subscription")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "Authentication failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.DisplayName,
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": tokenString})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	h.manager.Logout(identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			http.Error(w, "Missing token claim", http.StatusUnauthorized)
			return
		}
		email, _ := claims["email"].(string)
		name, _ := claims["name"].(string)
		issuedAt, _ := claims["iat"].(float64)

		// Tokens minted before the last (possibly forced) sign-out are dead.
		if !h.manager.SessionValidAt(userID, time.Unix(int64(issuedAt), 0)) {
			http.Error(w, "Session has been revoked", http.StatusUnauthorized)
			return
		}

		ctx := authz.WithIdentity(r.Context(), authz.Identity{
			UserID:      userID,
			Email:       email,
			DisplayName: name,
			IssuedAt:    int64(issuedAt),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// controllerForRequest resolves the caller's access controller, creating it
// on the first authenticated touch of a session.
func controllerForRequest(ctx context.Context, manager *access.Manager, identity authz.Identity) *access.Controller {
	return manager.Controller(ctx, identity.User())
}
