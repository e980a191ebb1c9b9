package routes

import (
	"database/sql"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/config"
	"github.com/receiptly/team-api/internal/directory"
	"github.com/receiptly/team-api/internal/handlers"
	"github.com/receiptly/team-api/internal/notification"
	"github.com/receiptly/team-api/internal/repository"
)

// RegisterRoutes wires the public and authenticated API surface.
func RegisterRoutes(
	router *mux.Router,
	db *sql.DB,
	manager *access.Manager,
	dir *directory.Service,
	notifications notification.Service,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	authHandler := handlers.NewAuthHandler(db, manager, cfg, logger)
	teamHandler := handlers.NewTeamHandler(manager, logger)
	inviteHandler := handlers.NewInviteHandler(manager, dir, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(repository.NewSubscriptionRepository(db), logger)
	notificationHandler := handlers.NewNotificationHandler(notifications, logger)
	healthHandler := handlers.NewHealthHandler(db)

	// Public routes
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/api/signup", authHandler.SignUp).Methods("POST")
	router.HandleFunc("/api/login", authHandler.Login).Methods("POST")
	router.HandleFunc("/api/invitations/{token}", inviteHandler.PreviewInvitation).Methods("GET")

	// Authenticated routes
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authHandler.JWTMiddleware)

	api.HandleFunc("/logout", authHandler.Logout).Methods("POST")

	api.HandleFunc("/team", teamHandler.GetTeam).Methods("GET")
	api.HandleFunc("/team/refresh", teamHandler.RefreshTeam).Methods("POST")
	api.HandleFunc("/team/members/{id}", teamHandler.RemoveMember).Methods("DELETE")

	api.HandleFunc("/team/invitations", inviteHandler.CreateInvitation).Methods("POST")
	api.HandleFunc("/invitations/{token}/accept", inviteHandler.AcceptInvitation).Methods("POST")
	api.HandleFunc("/team/invitations/{id}", inviteHandler.RevokeInvitation).Methods("DELETE")

	api.HandleFunc("/subscription", subscriptionHandler.GetEntitlements).Methods("GET")
	api.HandleFunc("/subscription", subscriptionHandler.UpdateSubscription).Methods("PUT")

	api.HandleFunc("/notifications", notificationHandler.ListNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", notificationHandler.MarkNotificationRead).Methods("POST")
}
