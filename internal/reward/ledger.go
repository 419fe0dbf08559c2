// Package reward owns all challenge progress mutation. Ledger state is
// a deterministic function of the applied increments and the time-boxed
// reversal policy: replaying the same event sequence reproduces the
// same state. Nothing outside this package moves Current or flips
// Completed.
package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chathub-io/chathub/internal/config"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/internal/repo/mongodb"
	"github.com/chathub-io/chathub/pkg/util"
)

// Notifier pushes ledger side effects to the affected user's live
// connection. Satisfied by delivery.Fanout; a no-op when offline.
type Notifier interface {
	ToUser(userID, event string, payload any) bool
}

type Ledger struct {
	challenges mongodb.ChallengeRepository
	users      mongodb.UserRepository
	history    mongodb.PointHistoryRepository
	notifier   Notifier
	window     time.Duration
	nearMiss   int
	reversed   *prometheus.CounterVec
	log        *logger.Logger
}

func NewLedger(
	challenges mongodb.ChallengeRepository,
	users mongodb.UserRepository,
	history mongodb.PointHistoryRepository,
	notifier Notifier,
	conf *config.Config,
) *Ledger {
	reversed, err := util.GetCounterVec(
		"challenge_completions_reversed_total",
		"Completed challenges un-completed inside the reversal window",
		"kind")
	if err != nil {
		panic(err)
	}

	return &Ledger{
		challenges: challenges,
		users:      users,
		history:    history,
		notifier:   notifier,
		window:     conf.Reward.ReversalWindow,
		nearMiss:   conf.Reward.NearMissThreshold,
		reversed:   reversed,
		log:        logger.MustNamed("reward"),
	}
}

// Advance moves every outstanding matching challenge of the user
// forward by amount, granting rewards for completions exactly once.
// The increment and the completion flip are each single guarded storage
// operations, so concurrent Advance calls cannot double-grant.
func (l *Ledger) Advance(ctx context.Context, userID string, kind ActionKind, amount int) error {
	if userID == "" || amount <= 0 {
		return nil
	}

	challenges, err := l.challenges.ListActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("list challenges: %w", err)
	}

	for _, challenge := range challenges {
		if challenge.Completed || !Matches(challenge, kind) {
			continue
		}

		updated, err := l.challenges.IncrementCurrent(ctx, challenge.ID, amount)
		if errors.Is(err, models.ErrNotFound) {
			// Raced to full, or completed meanwhile. Nothing to grant.
			continue
		}
		if err != nil {
			return fmt.Errorf("advance challenge %s: %w", challenge.ID.Hex(), err)
		}

		if err := l.grantAttainedStages(ctx, userID, updated); err != nil {
			return err
		}

		if updated.Current >= updated.Target {
			if err := l.complete(ctx, userID, updated); err != nil {
				return err
			}
			continue
		}

		l.notifier.ToUser(userID, models.EventChallengeUpdated, updated)
	}
	return nil
}

func (l *Ledger) complete(ctx context.Context, userID string, challenge *models.Challenge) error {
	completed, err := l.challenges.MarkCompleted(ctx, challenge.ID, time.Now())
	if errors.Is(err, models.ErrNotFound) {
		// A concurrent Advance won the completion; its grant stands.
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete challenge %s: %w", challenge.ID.Hex(), err)
	}

	if err := l.grant(ctx, userID, completed, completed.Reward, 0); err != nil {
		return err
	}
	l.notifier.ToUser(userID, models.EventChallengeUpdated, completed)
	return nil
}

func (l *Ledger) grantAttainedStages(ctx context.Context, userID string, challenge *models.Challenge) error {
	for i, stage := range challenge.Stages {
		if stage.Completed || challenge.Current < stage.Threshold {
			continue
		}
		updated, err := l.challenges.MarkStageCompleted(ctx, challenge.ID, i, time.Now())
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("complete stage %d of %s: %w", i, challenge.ID.Hex(), err)
		}
		if err := l.grant(ctx, userID, updated, stage.Reward, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) grant(ctx context.Context, userID string, challenge *models.Challenge, reward models.Reward, stage int) error {
	balance, err := l.users.AddPoints(ctx, userID, reward.Points)
	if err != nil {
		return fmt.Errorf("grant points: %w", err)
	}
	if reward.Badge != "" {
		if err := l.users.AddBadge(ctx, userID, reward.Badge); err != nil {
			return fmt.Errorf("grant badge: %w", err)
		}
	}
	entry := &models.PointEntry{
		UserID:      userID,
		Kind:        models.PointEarned,
		Amount:      reward.Points,
		ChallengeID: models.ObjectID(challenge.ID.Hex()),
		Stage:       stage,
		Note:        challenge.Title,
	}
	if err := l.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("record grant: %w", err)
	}

	log.Infow(ctx, "reward granted",
		"user_id", userID, "challenge_id", challenge.ID.Hex(), "points", reward.Points, "stage", stage)
	l.notifier.ToUser(userID, models.EventPointsUpdated, map[string]any{
		"points": balance,
		"earned": reward.Points,
	})
	return nil
}

// PreCheck reports, without mutating anything, which of the user's
// matching challenges a deletion of pending messages would reverse
// (completed within the window, would fall below target) or push
// strictly farther from an almost-reached target. The message pipeline
// uses it for the confirm-before-delete gate.
type PreCheck struct {
	Reversals  []string
	NearMisses []string
}

func (p PreCheck) Empty() bool {
	return len(p.Reversals) == 0 && len(p.NearMisses) == 0
}

func (l *Ledger) PreCheck(ctx context.Context, userID string, kind ActionKind, pending int) (PreCheck, error) {
	var result PreCheck
	if userID == "" || pending <= 0 {
		return result, nil
	}

	challenges, err := l.challenges.ListActive(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("list challenges: %w", err)
	}

	windowStart := time.Now().Add(-l.window)
	for _, challenge := range challenges {
		if !Matches(challenge, kind) {
			continue
		}
		if challenge.Completed {
			inWindow := challenge.CompletedAt != nil && !challenge.CompletedAt.Before(windowStart)
			if inWindow && challenge.Current-pending < challenge.Target {
				result.Reversals = append(result.Reversals, challenge.Title)
			}
			continue
		}
		if challenge.Current > 0 && challenge.Target-challenge.Current <= l.nearMiss {
			result.NearMisses = append(result.NearMisses, challenge.Title)
		}
	}
	return result, nil
}

// Reverse walks the user's matching challenges after messages were
// deleted. Current is always adjusted downward; the completion and its
// reward are only undone when the completion falls inside the reversal
// window, measured from each record's own completedAt. Older
// completions stand (ledger consistency downgrade, not an error).
// Staged records reverse stage by stage from the highest attained
// stage downward, applying the same window rule per stage.
func (l *Ledger) Reverse(ctx context.Context, userID string, kind ActionKind, amount int) error {
	if userID == "" || amount <= 0 {
		return nil
	}

	challenges, err := l.challenges.ListActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("list challenges: %w", err)
	}

	windowStart := time.Now().Add(-l.window)
	for _, challenge := range challenges {
		if !Matches(challenge, kind) {
			continue
		}
		if challenge.Current <= 0 && !challenge.Completed {
			continue
		}

		updated, err := l.challenges.DecrementCurrent(ctx, challenge.ID, amount)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reverse challenge %s: %w", challenge.ID.Hex(), err)
		}

		if challenge.Completed && updated.Current < updated.Target {
			if err := l.reverseCompletion(ctx, userID, challenge.ID, updated.Reward, updated.Title); err != nil {
				return err
			}
		}

		if err := l.reverseStages(ctx, userID, updated, windowStart); err != nil {
			return err
		}

		l.notifier.ToUser(userID, models.EventChallengeUpdated, updated)
	}
	return nil
}

func (l *Ledger) reverseCompletion(ctx context.Context, userID string, id primitive.ObjectID, reward models.Reward, title string) error {
	windowStart := time.Now().Add(-l.window)
	reversed, err := l.challenges.ClearCompletion(ctx, id, windowStart)
	if errors.Is(err, models.ErrNotFound) {
		// Completion is older than the window: the reward stands, only
		// progress was adjusted.
		log.Infow(ctx, "completion outside reversal window, reward kept",
			"user_id", userID, "challenge_id", id.Hex())
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear completion %s: %w", id.Hex(), err)
	}

	if err := l.refund(ctx, userID, id, reward, title, 0); err != nil {
		return err
	}
	l.reversed.WithLabelValues("completion").Inc()
	l.notifier.ToUser(userID, models.EventChallengeReversed, reversed)
	return nil
}

func (l *Ledger) reverseStages(ctx context.Context, userID string, challenge *models.Challenge, windowStart time.Time) error {
	for i := len(challenge.Stages) - 1; i >= 0; i-- {
		stage := challenge.Stages[i]
		if !stage.Completed || challenge.Current >= stage.Threshold {
			continue
		}
		_, err := l.challenges.ClearStageCompletion(ctx, challenge.ID, i, windowStart)
		if errors.Is(err, models.ErrNotFound) {
			// This stage's completion predates the window; deeper stages
			// are older still, so stop walking.
			return nil
		}
		if err != nil {
			return fmt.Errorf("clear stage %d of %s: %w", i, challenge.ID.Hex(), err)
		}
		if err := l.refund(ctx, userID, challenge.ID, stage.Reward, challenge.Title, i+1); err != nil {
			return err
		}
		l.reversed.WithLabelValues("stage").Inc()
	}
	return nil
}

func (l *Ledger) refund(ctx context.Context, userID string, id primitive.ObjectID, reward models.Reward, title string, stage int) error {
	balance, err := l.users.AddPoints(ctx, userID, -reward.Points)
	if err != nil {
		return fmt.Errorf("refund points: %w", err)
	}
	if reward.Badge != "" {
		if err := l.users.RemoveBadge(ctx, userID, reward.Badge); err != nil {
			return fmt.Errorf("remove badge: %w", err)
		}
	}
	entry := &models.PointEntry{
		UserID:      userID,
		Kind:        models.PointReversed,
		Amount:      -reward.Points,
		ChallengeID: models.ObjectID(id.Hex()),
		Stage:       stage,
		Note:        title,
	}
	if err := l.history.Append(ctx, entry); err != nil {
		return fmt.Errorf("record reversal: %w", err)
	}

	log.Infow(ctx, "reward reversed",
		"user_id", userID, "challenge_id", id.Hex(), "points", reward.Points, "stage", stage)
	l.notifier.ToUser(userID, models.EventPointsUpdated, map[string]any{
		"points":   balance,
		"reversed": reward.Points,
	})
	return nil
}

// ApplyQuizResult grants partial credit for a quiz-shaped challenge.
// Completion only happens at full correctness; partial answers earn
// floor-scaled points without touching the completion flag.
func (l *Ledger) ApplyQuizResult(ctx context.Context, userID string, challengeID primitive.ObjectID, correct, total int) (int, error) {
	challenge, err := l.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return 0, fmt.Errorf("get challenge: %w", err)
	}
	if challenge.UserID != userID {
		return 0, models.ErrNotFound
	}
	if challenge.Completed {
		return 0, nil
	}

	points := QuizScore(correct, total, challenge.Reward.Points)
	if correct >= total {
		updated, err := l.challenges.IncrementCurrent(ctx, challengeID, challenge.Target-challenge.Current)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return 0, fmt.Errorf("fill quiz progress: %w", err)
		}
		if updated != nil {
			return points, l.complete(ctx, userID, updated)
		}
		return points, nil
	}

	if points > 0 {
		partial := models.Reward{Points: points}
		if err := l.grant(ctx, userID, challenge, partial, 0); err != nil {
			return 0, err
		}
	}
	return points, nil
}
