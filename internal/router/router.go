// Package router wires the HTTP handlers and middleware chains into one mux.
package router

import (
	"net/http"

	"github.com/vidqueue/backend/internal/handlers"
	"github.com/vidqueue/backend/internal/middleware"
)

// Deps carries everything the route table needs.
type Deps struct {
	Auth      *handlers.AuthHandler
	Requests  *handlers.RequestHandler
	Dashboard *handlers.DashboardHandler
	Queue     *handlers.QueueHandler
	Subscribe *handlers.SubscribeHandler
	Webhook   *handlers.WebhookHandler
	Admin     *handlers.AdminHandler

	Sessions middleware.SessionValidator
	Accounts middleware.AccountLookup
	Grants   middleware.Granter
}

// New returns an http.Handler that serves the API under /api/v1. Public
// routes are bare; member routes run session auth, the monthly grant side
// effect and (for submission paths) the active membership gate; admin
// routes run session auth and the admin gate.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	sessionAuth := middleware.SessionAuth(d.Sessions, d.Accounts)
	grants := middleware.EnsureCreditsGranted(d.Grants)

	member := func(h http.HandlerFunc) http.Handler {
		return sessionAuth(grants(h))
	}
	patron := func(h http.HandlerFunc) http.Handler {
		return sessionAuth(grants(middleware.RequireActivePatron(h)))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return sessionAuth(middleware.RequireAdmin(h))
	}

	mux.HandleFunc("GET "+base+"/queue", d.Queue.Queue)
	mux.HandleFunc("GET "+base+"/auth/patreon", d.Auth.OAuthRedirect)
	mux.HandleFunc("GET "+base+"/auth/patreon/callback", d.Auth.OAuthCallback)
	mux.HandleFunc("POST "+base+"/auth/login", d.Auth.Login)
	mux.HandleFunc("POST "+base+"/auth/logout", d.Auth.Logout)
	mux.HandleFunc("POST "+base+"/webhooks/patreon", d.Webhook.Receive)

	mux.Handle("GET "+base+"/dashboard", member(d.Dashboard.Dashboard))
	mux.Handle("GET "+base+"/subscribe", member(d.Subscribe.Subscribe))
	mux.Handle("POST "+base+"/subscribe/refresh", member(d.Subscribe.Refresh))
	mux.Handle("GET "+base+"/requests", member(d.Requests.MyRequests))
	mux.Handle("GET "+base+"/my-requests", member(d.Requests.MyRequests))
	mux.Handle("POST "+base+"/requests", patron(d.Requests.Submit))
	mux.Handle("POST "+base+"/requests/check", patron(d.Requests.Check))
	mux.Handle("PATCH "+base+"/requests/{id}/context", patron(d.Requests.UpdateContext))

	mux.Handle("GET "+base+"/admin/requests", admin(d.Admin.ListRequests))
	mux.Handle("POST "+base+"/admin/requests/{id}/complete", admin(d.Admin.CompleteRequest))
	mux.Handle("POST "+base+"/admin/requests/{id}/revert", admin(d.Admin.RevertRequest))
	mux.Handle("GET "+base+"/admin/users", admin(d.Admin.ListUsers))
	mux.Handle("POST "+base+"/admin/users/{id}/credits", admin(d.Admin.AdjustCredits))
	mux.Handle("GET "+base+"/admin/statistics", admin(d.Admin.Statistics))
	mux.Handle("GET "+base+"/admin/settings", admin(d.Admin.GetSettings))
	mux.Handle("PUT "+base+"/admin/settings", admin(d.Admin.UpdateSettings))

	return mux
}
