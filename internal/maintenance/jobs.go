// Package maintenance runs the cron-driven housekeeping: retention
// eviction of old terminal posts and the recurring daily seed post.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"postflow/internal/domain"
	"postflow/internal/engine"
	"postflow/internal/store"
)

// DefaultRetention is how long terminal posts and their events are kept.
const DefaultRetention = 30 * 24 * time.Hour

type Config struct {
	Retention   time.Duration
	SeedContent string
	SeedChannel domain.Channel // empty disables the seed job
}

type Jobs struct {
	engine *engine.Engine
	store  store.Store
	cron   *cron.Cron
	cfg    Config
}

func New(eng *engine.Engine, st store.Store, cfg Config) *Jobs {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Jobs{engine: eng, store: st, cron: cron.New(), cfg: cfg}
}

func (j *Jobs) Start() error {
	if _, err := j.cron.AddFunc("@daily", j.RunEviction); err != nil {
		return err
	}
	if j.cfg.SeedChannel != "" {
		if _, err := j.cron.AddFunc("@daily", j.RunSeed); err != nil {
			return err
		}
	}
	j.cron.Start()
	log.Info().Dur("retention", j.cfg.Retention).Str("seed_channel", string(j.cfg.SeedChannel)).Msg("maintenance jobs started")
	return nil
}

func (j *Jobs) Stop() { j.cron.Stop() }

// RunEviction deletes terminal posts older than the retention window.
func (j *Jobs) RunEviction() {
	cutoff := time.Now().UTC().Add(-j.cfg.Retention)
	n, err := j.store.EvictTerminal(context.Background(), cutoff)
	if err != nil {
		log.Error().Err(err).Msg("retention eviction failed")
		return
	}
	log.Info().Int("evicted", n).Time("cutoff", cutoff).Msg("retention eviction done")
}

// RunSeed schedules the fixed recurring post through the ordinary
// engine path; it gets the same retry and audit treatment as any other.
func (j *Jobs) RunSeed() {
	id, err := j.engine.PublishNow(context.Background(), j.cfg.SeedContent, j.cfg.SeedChannel, []string{"daily-seed"})
	if err != nil {
		log.Error().Err(err).Msg("seed post failed")
		return
	}
	log.Info().Str("post_id", id).Msg("seed post scheduled")
}
