package reward

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/chathub-io/chathub/internal/config"
	"github.com/chathub-io/chathub/internal/repo/mongodb"
)

// Refresher re-seeds per-user daily challenges from templates on a cron
// schedule and sweeps out expired records.
type Refresher struct {
	challenges mongodb.ChallengeRepository
	templates  mongodb.ChallengeTemplateRepository
	cronExpr   string
	enabled    bool
	gron       gronx.Gronx
	log        *logger.Logger
	done       chan struct{}
}

func NewRefresher(
	challenges mongodb.ChallengeRepository,
	templates mongodb.ChallengeTemplateRepository,
	conf *config.Config,
) *Refresher {
	return &Refresher{
		challenges: challenges,
		templates:  templates,
		cronExpr:   conf.Reward.RefreshCron,
		enabled:    conf.Reward.RefreshEnabled,
		gron:       gronx.New(),
		log:        logger.MustNamed("reward-refresh"),
		done:       make(chan struct{}),
	}
}

// StartRefresher wires the refresh loop into the fx lifecycle.
func StartRefresher(lc fx.Lifecycle, r *Refresher) {
	if !r.enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.run()
			return nil
		},
		OnStop: func(context.Context) error {
			close(r.done)
			return nil
		},
	})
}

func (r *Refresher) run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			due, err := r.gron.IsDue(r.cronExpr, time.Now())
			if err != nil {
				r.log.Errorw("bad refresh cron expression", "cron", r.cronExpr, "error", err)
				return
			}
			if !due {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := r.RefreshAll(ctx); err != nil {
				r.log.Errorw("challenge refresh failed", "error", err)
			}
			cancel()
		}
	}
}

// RefreshAll deletes expired challenge records and seeds a fresh record
// per enabled template for every active user. Already-seeded unexpired
// records are left alone.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	deleted, err := r.challenges.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Infow(ctx, "expired challenges removed", "count", deleted)
	}

	templates, err := r.templates.ListEnabled(ctx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return nil
	}

	userIDs, err := r.templates.ActiveUserIDs(ctx)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for _, userID := range userIDs {
		group.Go(func() error {
			for _, tpl := range templates {
				ttl := tpl.TTL
				if ttl <= 0 {
					ttl = 24 * time.Hour
				}
				if err := r.challenges.EnsureForUser(groupCtx, userID, *tpl, time.Now().Add(ttl)); err != nil {
					log.Errorw(groupCtx, "seed challenge failed",
						"user_id", userID, "template", tpl.Title, "error", err)
				}
			}
			return nil
		})
	}
	return group.Wait()
}
