package middleware

import (
	"strings"

	"github.com/go-chi/cors"
)

// preflightMaxAge is how long browsers may cache a preflight, in seconds.
const preflightMaxAge = 600

// CORS builds the cors.Options for the research API. Origins are trimmed,
// stripped of a trailing slash and deduplicated. A "*" entry replaces the
// whole list and turns credentials off, since browsers reject credentialed
// responses for a wildcard origin.
func CORS(allowedOrigins []string) cors.Options {
	origins := normalizeOrigins(allowedOrigins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	allowCreds := !(len(origins) == 1 && origins[0] == "*")

	return cors.Options{
		AllowedOrigins: origins,
		// Sessions are created and refreshed with POST, memory is cleared with DELETE.
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           preflightMaxAge,
	}
}

func normalizeOrigins(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}
