package services

import (
	"context"
	"time"

	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/scheduler"
	"pdf-rag-chat/internal/telemetry"
)

const reaperJobTag = "session-reaper"

// SessionReaper cleans up sessions that have been idle longer than a TTL.
type SessionReaper struct {
	registry *SessionRegistry
	cleaner  *Cleaner
	ttl      time.Duration
	interval time.Duration
	metrics  *telemetry.Metrics
	now      func() time.Time

	scheduler *scheduler.Scheduler
}

func NewSessionReaper(registry *SessionRegistry, cleaner *Cleaner, ttl, interval time.Duration, metrics *telemetry.Metrics) *SessionReaper {
	return &SessionReaper{
		registry: registry,
		cleaner:  cleaner,
		ttl:      ttl,
		interval: interval,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Start schedules periodic sweeps. A zero TTL leaves the reaper off.
func (r *SessionReaper) Start() error {
	if r.ttl <= 0 {
		logger.Info("Idle session reaper disabled")
		return nil
	}

	r.scheduler = scheduler.NewScheduler()
	if err := r.scheduler.ScheduleInterval(reaperJobTag, r.interval, func(ctx context.Context) error {
		r.Sweep(ctx)
		return nil
	}); err != nil {
		return err
	}
	r.scheduler.Start()
	logger.Info("Idle session reaper started", "ttl", r.ttl, "interval", r.interval)
	return nil
}

func (r *SessionReaper) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}

// Sweep cleans up every session idle since before now-ttl and returns how
// many were removed.
func (r *SessionReaper) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)
	reaped := 0
	for _, id := range r.registry.IdleSessions(cutoff) {
		if ctx.Err() != nil {
			break
		}
		// A session touched or removed since the listing is skipped.
		session, ok := r.registry.RemoveIfIdle(id, cutoff)
		if !ok {
			continue
		}
		res := r.cleaner.deleteCollections(ctx, session)
		reaped++
		logger.Info("Reaped idle session", "session_id", id, "collections", len(res.DeletedCollections), "warnings", len(res.Warnings))
	}
	r.metrics.RecordSessionsReaped(reaped)
	return reaped
}
