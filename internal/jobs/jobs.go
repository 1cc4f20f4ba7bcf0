package jobs

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// StartReclaimer sweeps the manager's TTL queue every interval. Stop the
// returned scheduler on shutdown.
func StartReclaimer(m *Manager, interval time.Duration, log *zap.SugaredLogger) (*gocron.Scheduler, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	log.Infof("Scheduling job reclaimer every %s", interval)
	_, err := s.Every(interval).Do(func() {
		if n := m.Reclaimer().Sweep(m.opts.Now()); n > 0 {
			log.Infof("Reclaimed %d expired jobs", n)
		}
	})
	if err != nil {
		return nil, err
	}

	s.StartAsync()
	return s, nil
}
