package queue

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// Reaper runs RecoverStaleState periodically as a safety net beyond the
// mandatory startup-only sweep (§4.1 only requires the latter; this is a
// supplemented feature covering a process that has been up for a long
// time and accumulated jobs that died without the process itself
// restarting).
type Reaper struct {
	store  interfaces.Store
	logger arbor.ILogger
	cron   *cron.Cron
}

func NewReaper(store interfaces.Store, logger arbor.ILogger) *Reaper {
	return &Reaper{store: store, logger: logger, cron: cron.New()}
}

// Start schedules the sweep on spec and returns immediately; Stop cancels
// it during shutdown.
func (r *Reaper) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "@every 10m"
	}
	_, err := r.cron.AddFunc(spec, func() {
		if err := r.store.RecoverStaleState(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("periodic stale-state sweep failed")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}
