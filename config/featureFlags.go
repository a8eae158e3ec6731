package config

import (
	"os"
	"strings"
)

// Set via env:
// - MEASURE_APPLY_UPDATES=true
// - MEASURE_APPLY_DELETES=true
//
// The measurement family is insert-only unless these are enabled.
func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func envString(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// CORSAllowedOrigins lists the dashboard origins allowed to call the sync service.
//
// Set via env:
// - CORS_ALLOWED_ORIGINS="https://dashboard.example,http://localhost:5000"
func CORSAllowedOrigins() []string {
	return splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ServicePlants lists the plants the sync service accepts.
//
// Set via env:
// - SYNC_PLANTS="tn,pl,it" (default "tn")
func ServicePlants() []string {
	var out []string
	for _, p := range splitAndTrim(envString("SYNC_PLANTS", "tn")) {
		out = append(out, strings.ToLower(p))
	}
	return out
}
