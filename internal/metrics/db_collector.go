package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool labels for the connection gauges
const (
	PoolPrimary   = "primary"
	PoolReporting = "reporting"
)

// DBStatsCollector publishes connection gauges for the pgx pool that serves
// the auth flows and the database/sql handle behind session reporting.
// Each pool is reported under its own label.
type DBStatsCollector struct {
	primary   *pgxpool.Pool
	reporting *sql.DB
	logger    *slog.Logger
}

// NewDBStatsCollector creates a collector; either handle may be nil
func NewDBStatsCollector(primary *pgxpool.Pool, reporting *sql.DB, logger *slog.Logger) *DBStatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBStatsCollector{primary: primary, reporting: reporting, logger: logger}
}

// Run collects once, then every interval until ctx is done
func (c *DBStatsCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("Database stats collector started", slog.Duration("interval", interval))
	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-ctx.Done():
			c.logger.Info("Database stats collector stopped")
			return
		}
	}
}

// Collect samples both pools once
func (c *DBStatsCollector) Collect() {
	if c.primary != nil {
		stat := c.primary.Stat()
		setPoolGauges(PoolPrimary, stat.TotalConns(), stat.AcquiredConns(), stat.IdleConns(), stat.MaxConns())
	}
	if c.reporting != nil {
		stats := c.reporting.Stats()
		setPoolGauges(PoolReporting, int32(stats.OpenConnections), int32(stats.InUse), int32(stats.Idle), int32(stats.MaxOpenConnections))
	}
}

func setPoolGauges(pool string, open, inUse, idle, maxOpen int32) {
	DBConnectionsOpen.WithLabelValues(pool).Set(float64(open))
	DBConnectionsInUse.WithLabelValues(pool).Set(float64(inUse))
	DBConnectionsIdle.WithLabelValues(pool).Set(float64(idle))
	DBConnectionsMaxOpen.WithLabelValues(pool).Set(float64(maxOpen))
}

// TimeQuery starts timing a named query.
// Usage: defer metrics.TimeQuery("bootstrap_tenant")()
func TimeQuery(operation string) func() {
	start := time.Now()
	return func() {
		DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingDatabase pings db and records the round trip as the "ping" operation
func PingDatabase(ctx context.Context, db Pinger) error {
	defer TimeQuery("ping")()
	return db.Ping(ctx)
}
