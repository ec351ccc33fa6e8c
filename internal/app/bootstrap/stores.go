package bootstrap

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/haseebbuilds/voice-agent/internal/appointments"
	"github.com/haseebbuilds/voice-agent/internal/calls"
	"github.com/haseebbuilds/voice-agent/internal/compliance"
	appconfig "github.com/haseebbuilds/voice-agent/internal/config"
	"github.com/haseebbuilds/voice-agent/internal/notify"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

// Stores is the persistence and coordination layer shared by the services.
type Stores struct {
	Calls        calls.Repository
	Appointments appointments.Repository
	Locker       appointments.SlotLocker
	Claims       notify.ClaimStore
	Audit        compliance.AuditLog

	// Backend names the repository implementation for startup logs.
	Backend string
}

// BuildStores picks Postgres repositories and the audit table when a pool is available and Redis
// reservations/claims when a client is available. Anything missing falls back
// to the in-process implementation.
func BuildStores(cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) Stores {
	if logger == nil {
		logger = logging.Default()
	}
	var s Stores
	if pool != nil {
		s.Calls = calls.NewPostgresRepository(pool)
		s.Appointments = appointments.NewPostgresRepository(pool)
		s.Audit = compliance.NewAuditService(stdlib.OpenDBFromPool(pool))
		s.Backend = "postgres"
	} else {
		s.Calls = calls.NewInMemoryRepository()
		s.Appointments = appointments.NewInMemoryRepository()
		s.Audit = compliance.NewMemoryAuditLog()
		s.Backend = "memory"
		logger.Warn("no database configured; calls and appointments are kept in memory")
	}

	if redisClient != nil {
		var reservationTTL time.Duration
		if cfg != nil {
			reservationTTL = cfg.ReservationTTL
		}
		s.Locker = appointments.NewRedisSlotLocker(redisClient, reservationTTL)
		s.Claims = notify.NewRedisClaimStore(redisClient, claimTTL(cfg))
	} else {
		s.Locker = appointments.NewMemorySlotLocker()
		s.Claims = notify.NewMemoryClaimStore()
	}
	return s
}

// claimTTL outlives the longest retry schedule so a live sender never loses its claim.
func claimTTL(cfg *appconfig.Config) time.Duration {
	const floor = 5 * time.Minute
	if cfg == nil {
		return floor
	}
	worst := time.Duration(cfg.EmailMaxAttempts) * (cfg.EmailRetryMaxDelay + 30*time.Second)
	if worst < floor {
		return floor
	}
	return worst
}
