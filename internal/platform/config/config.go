package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Matching radii, hold
// durations, and sweep cadence are deliberately configuration rather than
// constants: deployments tune them per region.
type Server struct {
	Addr          string
	JWTSigningKey string

	// Empty URLs select the in-memory stores.
	PostgresURL  string
	RedisURL     string
	KafkaBrokers []string
	AuditTopic   string

	Matching Matching

	// ReservationHoldTTL bounds how long reserved units stay locked before
	// the sweep releases them (models the pickup window).
	ReservationHoldTTL time.Duration
	// RequestTTL is how long a blood request stays actionable after creation.
	RequestTTL time.Duration
	// SweepInterval is the cadence of the expiry sweeper.
	SweepInterval time.Duration
}

// Matching holds the search parameters of the matching engine.
type Matching struct {
	// RadiusStepsKm are tried in order until MinCandidates survive filtering
	// or the steps are exhausted. Bounded expansion, never unbounded search.
	RadiusStepsKm []float64
	MinCandidates int
	MaxCandidates int
}

// FromEnv builds a Server config from environment variables so main stays
// lean. Defaults are suitable for development.
func FromEnv() Server {
	addr := getenv("HEMOLINK_ADDR", ":8080")

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		PostgresURL:   os.Getenv("HEMOLINK_POSTGRES_URL"),
		RedisURL:      os.Getenv("HEMOLINK_REDIS_URL"),
		KafkaBrokers:  splitList(os.Getenv("HEMOLINK_KAFKA_BROKERS")),
		AuditTopic:    getenv("HEMOLINK_AUDIT_TOPIC", "hemolink.audit"),
		Matching: Matching{
			RadiusStepsKm: floatList(os.Getenv("MATCH_RADIUS_STEPS_KM"), []float64{25, 50, 100}),
			MinCandidates: getint("MATCH_MIN_CANDIDATES", 3),
			MaxCandidates: getint("MATCH_MAX_CANDIDATES", 50),
		},
		ReservationHoldTTL: getduration("RESERVATION_HOLD_TTL", 15*time.Minute),
		RequestTTL:         getduration("REQUEST_TTL", 24*time.Hour),
		SweepInterval:      getduration("SWEEP_INTERVAL", 30*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func floatList(v string, fallback []float64) []float64 {
	if v == "" {
		return fallback
	}
	var out []float64
	for _, p := range strings.Split(v, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fallback
		}
		out = append(out, f)
	}
	return out
}
