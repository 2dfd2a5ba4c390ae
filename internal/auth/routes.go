package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the web, mobile and admin authentication routes.
// authMiddleware authenticates the caller; adminMiddleware additionally
// requires the tenant admin flag.
func RegisterRoutes(r chi.Router, handler *AuthHandler, admin *AdminHandler, authMiddleware, adminMiddleware Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/verify", handler.Verify)
		r.Post("/resend", handler.Resend)
		r.Post("/complete-registration", handler.CompleteRegistration)
		r.Post("/login", handler.Login)
		r.Post("/refresh", handler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", handler.Logout)
			r.Post("/logout-all", handler.LogoutAll)
			r.Get("/me", handler.GetMe)
		})

		r.Route("/mobile", func(r chi.Router) {
			r.Post("/login", handler.MobileLogin)
			r.Post("/refresh", handler.MobileRefresh)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware)
				r.Post("/logout", handler.MobileLogout)
				r.Get("/sessions", handler.MobileSessions)
				r.Delete("/sessions/{sessionID}", handler.MobileRevokeSession)
			})
		})

		if admin == nil {
			return
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware, adminMiddleware)

			r.Get("/sessions", admin.ListSessions)
			r.Get("/sessions/stats", admin.SessionStats)
			r.Get("/sessions/suspicious", admin.Suspicious)
			r.Post("/sessions/revoke-multiple", admin.RevokeMultiple)
			r.Get("/sessions/user/{userID}", admin.ListUserSessions)
			r.Delete("/sessions/user/{userID}/revoke-all", admin.RevokeAllForUser)
			r.Delete("/sessions/{sessionID}", admin.RevokeSession)

			r.Get("/security/stats", admin.SecurityStats)
			r.Post("/security/unblock", admin.Unblock)
		})
	})
}
