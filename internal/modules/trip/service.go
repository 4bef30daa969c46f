// README: Trip service applies transitions atomically and publishes them best-effort.
package trip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier receives applied transitions, e.g. driver prompts and operator alerts.
type Notifier interface {
	Notify(ctx context.Context, t Trip, e Event) error
}

type Service struct {
	store    Store
	history  History
	notifier Notifier
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time

	pending sync.WaitGroup
}

// NewService accepts nil history and notifier.
func NewService(store Store, history History, notifier Notifier, timeout time.Duration, log *zap.Logger) *Service {
	return &Service{store: store, history: history, notifier: notifier, timeout: timeout, log: log, now: time.Now}
}

// Apply moves t to the target status and returns the updated trip. t is
// never modified: when the write fails the caller still holds the prior
// state and the error wraps ErrTransient unless retrying cannot help.
func (s *Service) Apply(ctx context.Context, t Trip, to Status, actor Actor) (Trip, Event, error) {
	if !CanTransition(t.Status, to) {
		return t, Event{}, fmt.Errorf("%w: %s -> %s", ErrInvalidState, t.Status, to)
	}
	return s.commit(ctx, t, Transition{
		TripID:      t.ID,
		From:        t.Status,
		To:          to,
		FromVersion: t.StatusVersion,
		At:          s.now(),
		Actor:       actor,
	})
}

// ForceComplete terminates t from any non-terminal status. The resulting
// event is flagged and carries the operator and reason.
func (s *Service) ForceComplete(ctx context.Context, t Trip, actor Actor, reason string) (Trip, Event, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || actor.ID == "" {
		return t, Event{}, fmt.Errorf("%w: force-complete requires operator and reason", ErrBadRequest)
	}
	if !CanForceComplete(t.Status) {
		return t, Event{}, fmt.Errorf("%w: %s is terminal", ErrInvalidState, t.Status)
	}
	next, e, err := s.commit(ctx, t, Transition{
		TripID:      t.ID,
		From:        t.Status,
		To:          StatusCompleted,
		FromVersion: t.StatusVersion,
		At:          s.now(),
		Actor:       actor,
		Reason:      reason,
		Forced:      true,
	})
	if err == nil {
		s.log.Warn("trip force-completed",
			zap.String("trip_id", string(t.ID)),
			zap.String("from", string(e.From)),
			zap.String("actor", actor.ID),
			zap.String("reason", reason))
	}
	return next, e, err
}

func (s *Service) commit(ctx context.Context, t Trip, tr Transition) (Trip, Event, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.store.ApplyTransition(ctx, tr); err != nil {
		s.log.Warn("trip transition not persisted",
			zap.String("trip_id", string(tr.TripID)),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.Error(err))
		if isPermanent(err) {
			return t, Event{}, err
		}
		return t, Event{}, fmt.Errorf("%w: persist %s -> %s: %v", ErrTransient, tr.From, tr.To, err)
	}

	next := t.Apply(tr)
	e := Event{
		ID:        uuid.NewString(),
		TripID:    tr.TripID,
		From:      tr.From,
		To:        tr.To,
		ActorType: tr.Actor.Type,
		ActorID:   tr.Actor.ID,
		Reason:    tr.Reason,
		Forced:    tr.Forced,
		CreatedAt: tr.At,
	}
	s.log.Info("trip transition applied",
		zap.String("trip_id", string(tr.TripID)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor_type", string(tr.Actor.Type)),
		zap.Bool("forced", tr.Forced))
	s.publish(next.Clone(), e)
	return next, e, nil
}

// publish records history and notifies without holding up the caller.
func (s *Service) publish(t Trip, e Event) {
	if s.history == nil && s.notifier == nil {
		return
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if s.history != nil {
			if err := s.history.Append(ctx, e); err != nil {
				s.log.Warn("trip event not recorded", zap.String("trip_id", string(e.TripID)), zap.Error(err))
			}
		}
		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, t, e); err != nil {
				s.log.Warn("trip notification failed", zap.String("trip_id", string(e.TripID)), zap.Error(err))
			}
		}
	}()
}

// Wait blocks until pending history writes and notifications finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

// IsRetryable reports whether err came from a transition that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
