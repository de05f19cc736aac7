package handler

import "net/http"

// Handlers groups the HTTP handlers served on the API listener
type Handlers struct {
	Users    *UserHandler
	Settings *SettingsHandler
	OpenAPI  *OpenAPIHandler
}

// RegisterRoutes registers every API route on mux.
// protect wraps each authenticated route on its own so the mux still
// exposes the matched pattern (r.Pattern) to outer middleware.
func RegisterRoutes(mux *http.ServeMux, h Handlers, protect func(http.Handler) http.Handler) {
	// Public
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("GET /openapi.yaml", h.OpenAPI.YAML)
	mux.HandleFunc("GET /openapi.json", h.OpenAPI.JSON)

	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	// Current user
	authed("GET /users/me", h.Users.GetCurrentUser)
	authed("PUT /users/me", h.Users.UpdateCurrentUser)
	authed("POST /users/me/profile-picture", h.Users.ProfilePicture)
	authed("GET /users/me/settings", h.Settings.GetSettings)
	authed("PUT /users/me/settings", h.Settings.UpdateSettings)

	// Lookups
	authed("POST /users/bart", h.Users.GetUsersBySubs)
	authed("GET /users/username/{username}", h.Users.GetUserByUsername)
	authed("GET /users/display_name/{display_name}", h.Users.GetUserByDisplayName)
	authed("GET /users/{sub}", h.Users.GetUserBySub)
}
