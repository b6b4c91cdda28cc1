package emulator

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/birbparty/firenest/internal/telemetry"
)

// ReaperConfig contains configuration for the refresh token reaper
type ReaperConfig struct {
	IdleTimeout time.Duration
	MinimumAge  time.Duration
	Interval    time.Duration
	DryRun      bool
}

// LoadReaperConfig loads reaper configuration from environment variables.
// A zero IdleTimeout disables the reaper.
func LoadReaperConfig() ReaperConfig {
	return ReaperConfig{
		IdleTimeout: getEnvDuration("REFRESH_TOKEN_IDLE_TIMEOUT", 0),
		MinimumAge:  getEnvDuration("REFRESH_TOKEN_MINIMUM_AGE", 30*time.Minute),
		Interval:    getEnvDuration("REAPER_INTERVAL", 5*time.Minute),
		DryRun:      getEnvBool("REAPER_DRY_RUN", false),
	}
}

// Reaper revokes refresh tokens that have not been used for a while, so a
// long running emulator does not accumulate abandoned user sessions.
// Clients holding a revoked token get INVALID_REFRESH_TOKEN and must sign
// in again.
type Reaper struct {
	auth   *Authority
	config ReaperConfig
}

// NewReaper creates a reaper for auth
func NewReaper(auth *Authority, config ReaperConfig) *Reaper {
	if config.MinimumAge == 0 {
		config.MinimumAge = 30 * time.Minute
	}
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}

	return &Reaper{
		auth:   auth,
		config: config,
	}
}

// Enabled reports whether an idle timeout is configured
func (r *Reaper) Enabled() bool {
	return r.config.IdleTimeout > 0
}

// Start sweeps every Interval until ctx is done
func (r *Reaper) Start(ctx context.Context) {
	if !r.Enabled() {
		return
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	telemetry.L().WithFields(map[string]interface{}{
		"dry_run":      r.config.DryRun,
		"interval":     r.config.Interval.String(),
		"idle_timeout": r.config.IdleTimeout.String(),
	}).Info("Refresh token reaper started")

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			telemetry.L().Info("Refresh token reaper stopped")
			return
		}
	}
}

// Sweep runs one reaper cycle and returns the user ids whose refresh
// tokens were revoked, or would have been in dry run mode
func (r *Reaper) Sweep() []string {
	users := r.auth.IdleRefreshTokens(r.config.IdleTimeout, r.config.MinimumAge, r.config.DryRun)
	if len(users) == 0 {
		return users
	}

	log := telemetry.L().WithField("users", users)
	if r.config.DryRun {
		log.Infof("DRY RUN: would have revoked %d refresh tokens", len(users))
		return users
	}

	RecordRefreshTokensRevoked(len(users))
	log.Infof("Revoked %d idle refresh tokens", len(users))
	return users
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
