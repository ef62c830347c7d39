package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*.example.com" wildcards, or "*".
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RelayCORSConfig returns the CORS policy used by the relay for a single
// configured origin value. A comma separated value is split into a list.
func RelayCORSConfig(origin string) CORSConfig {
	var origins []string
	for _, o := range strings.Split(origin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// Preflight requests are answered with 204 and not passed to next. Requested
// header names are matched case-insensitively.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	maxAge := config.MaxAge
	if maxAge <= 0 {
		maxAge = 300
	}

	c := cors.New(cors.Options{
		AllowedOrigins:       config.AllowedOrigins,
		AllowedMethods:       config.AllowedMethods,
		AllowedHeaders:       config.AllowedHeaders,
		AllowCredentials:     config.AllowCredentials,
		MaxAge:               maxAge,
		OptionsSuccessStatus: http.StatusNoContent,
	})

	return func(next http.Handler) http.Handler {
		h := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			normalizeRequestHeaders(r)
			h.ServeHTTP(w, r)
		})
	}
}

// normalizeRequestHeaders lowercases Access-Control-Request-Headers on
// preflights. rs/cors only matches the lowercase form browsers send, so a
// "Content-Type" from a non-browser client would otherwise fail silently.
func normalizeRequestHeaders(r *http.Request) {
	if r.Method != http.MethodOptions {
		return
	}
	values := r.Header.Values("Access-Control-Request-Headers")
	if len(values) == 0 {
		return
	}
	lowered := make([]string, len(values))
	for i, v := range values {
		lowered[i] = strings.ToLower(v)
	}
	r.Header["Access-Control-Request-Headers"] = lowered
}
