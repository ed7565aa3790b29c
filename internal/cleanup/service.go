package cleanup

import (
	"time"

	"facegate/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service prunes audit events older than the retention period. Identities
// and face samples are never touched: the registry is append-only.
type Service struct {
	repo          repository.Repository
	retentionDays int
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates a cleanup service. Returns nil when retention is
// disabled (retention_days <= 0).
func NewService(repo repository.Repository, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic event cleanup disabled (retention_days <= 0)")
		return nil
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start runs the periodic cleanup loop in a background goroutine. An
// immediate cycle runs on startup.
func (s *Service) Start() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		s.RunCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine")
				return
			}
		}
	}()
}

// Stop signals the background routine to stop.
func (s *Service) Stop() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

// RunCycle performs one cleanup pass over the event log.
func (s *Service) RunCycle() {
	if s == nil || s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.repo.PruneEventsBefore(cutoff)
	if err != nil {
		log.Errorf("Cleanup: failed to prune events older than %s: %v", cutoff.Format(time.RFC3339), err)
		return
	}
	if deleted > 0 {
		log.Infof("Cleanup: pruned %d event(s) older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
