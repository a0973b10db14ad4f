// Package monitor periodically reports service health: live session count,
// rendered marker totals, store size, and reconcile timings.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/amou/memorymap/internal/influx"
	"github.com/amou/memorymap/internal/logging"
)

// Stats is one status observation.
type Stats struct {
	Sessions      int           `json:"sessions"`
	Markers       int           `json:"markers"`
	StoredRecords int           `json:"stored_records"`
	LastReconcile time.Duration `json:"last_reconcile"`
}

// StatsFunc produces the current observation.
type StatsFunc func() Stats

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	LogManager *logging.SlogManager
	Influx     *influx.Manager // optional
	Stats      StatsFunc
	Interval   time.Duration
}

// Service logs a status observation on a fixed interval.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 30 * time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine")

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				stats := s.deps.Stats()
				logger.Info("status",
					"sessions", stats.Sessions,
					"markers", stats.Markers,
					"stored_records", stats.StoredRecords,
					"last_reconcile_ms", float64(stats.LastReconcile.Microseconds())/1000.0,
				)

				if s.deps.Influx != nil {
					if err := s.deps.Influx.RecordSessionCount(context.Background(), stats.Sessions); err != nil {
						logger.Error("Error writing session count to InfluxDB", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
