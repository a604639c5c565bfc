package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DESCRIPTOR_DIM", "MATCH_THRESHOLD", "MATCH_INDEX", "CORS_ORIGINS", "DATABASE_DRIVER", "AUTH_PROVIDER"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.DescriptorDim != 128 || cfg.MatchThreshold != 0.6 || cfg.MatchIndex != "scan" {
		t.Errorf("matching defaults = %d %v %s", cfg.DescriptorDim, cfg.MatchThreshold, cfg.MatchIndex)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("DESCRIPTOR_DIM", "512")
	t.Setenv("DESCRIPTOR_CACHE_TTL", "2m")
	t.Setenv("FACE_SKIP", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SESSION_TIMEZONE", "Asia/Kolkata")

	cfg := Load()
	if cfg.MatchThreshold != 0.45 || cfg.DescriptorDim != 512 {
		t.Errorf("threshold/dim = %v/%d", cfg.MatchThreshold, cfg.DescriptorDim)
	}
	if cfg.DescriptorCacheTTL != 2*time.Minute || cfg.FaceSkip {
		t.Errorf("ttl/faceSkip = %v/%v", cfg.DescriptorCacheTTL, cfg.FaceSkip)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %q", cfg.CORSOrigins)
	}
	if _, err := cfg.Location(); err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "close")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("ACCESS_TTL", "soon")
	cfg := Load()
	if cfg.MatchThreshold != 0.6 || cfg.RateLimitPerMin != 120 || cfg.AccessTTL != 15*time.Minute {
		t.Errorf("fallbacks not applied: %v %d %v", cfg.MatchThreshold, cfg.RateLimitPerMin, cfg.AccessTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*App)
	}{
		{"driver", func(a *App) { a.DatabaseDriver = "mysql" }},
		{"auth provider", func(a *App) { a.AuthProvider = "saml" }},
		{"firebase without project", func(a *App) { a.AuthProvider, a.FirebaseProjectID = "firebase", "" }},
		{"index", func(a *App) { a.MatchIndex = "faiss" }},
		{"dim", func(a *App) { a.DescriptorDim = 0 }},
		{"threshold", func(a *App) { a.MatchThreshold = -1 }},
		{"timezone", func(a *App) { a.SessionTimezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Load()
			a.DatabaseDriver, a.AuthProvider, a.MatchIndex, a.SessionTimezone = "postgres", "jwt", "scan", "UTC"
			tt.mutate(&a)
			if err := a.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
