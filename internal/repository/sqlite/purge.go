package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PurgeSchedule is how often expired challenges are swept.
const PurgeSchedule = "@every 10m"

// SchedulePurge registers PurgeExpired on c. The caller owns c and is
// responsible for Start and Stop.
func (db *DB) SchedulePurge(c *cron.Cron) (cron.EntryID, error) {
	id, err := c.AddFunc(PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := db.PurgeExpired(ctx)
		if err != nil {
			db.logger.Error("purging expired challenges", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			db.logger.Info("purged expired challenges", slog.Int64("count", n))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: scheduling purge: %w", err)
	}
	return id, nil
}
