// Package session binds one client connection to pipeline runs. Each
// session owns its workflow state through a single worker goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/estatepost/internal/lock"
	"github.com/ashureev/estatepost/internal/workflow"
)

var (
	// ErrInboxFull is returned when a session already has too many queued messages.
	ErrInboxFull = errors.New("session: too many pending messages")
	// ErrClosed is returned for messages sent after the session ended.
	ErrClosed = errors.New("session: closed")
)

// Locker serializes runs for one client across processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (lock.UnlockFunc, error)
}

// Session holds one client's workflow state.
type Session struct {
	id      string
	engine  *workflow.Engine
	sink    workflow.Sink
	locker  Locker
	lockTTL time.Duration
	log     *slog.Logger

	inbox chan Message
	done  chan struct{}

	// Owned by the worker goroutine.
	state  workflow.State
	seeded bool
}

// ID returns the client id.
func (s *Session) ID() string { return s.id }

// Submit queues msg for the worker without blocking.
func (s *Session) Submit(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- msg:
		return nil
	default:
		return ErrInboxFull
	}
}

// run drains the inbox until ctx is cancelled.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			s.handle(ctx, msg)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case MessageInitialInput:
		s.state = s.state.Reseed(msg.UserInput)
		s.seeded = true
		s.execute(ctx, "")

	case MessageDetailsInput:
		details, err := DecodeDetails(msg.Details)
		if err != nil {
			s.emit(ctx, workflow.ErrorEvent(err.Error()))
			return
		}
		next := s.state.Clone()
		next.MergeDetails(details)
		if err := next.Validate(); err != nil {
			s.emit(ctx, workflow.ErrorEvent(err.Error()))
			return
		}
		s.state = next
		if !s.seeded {
			s.log.Debug("Details stored before seed")
			return
		}
		if missing := workflow.MissingFields(s.state); len(missing) > 0 {
			s.emit(ctx, workflow.RequestInputEvent(missing))
			return
		}
		s.execute(ctx, workflow.ResumeAt)

	default:
		s.emit(ctx, workflow.ErrorEvent(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (s *Session) execute(ctx context.Context, entry string) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, s.id, s.lockTTL)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("Failed to acquire run lock", "error", err)
				s.emit(ctx, workflow.ErrorEvent("another run for this client is in progress"))
			}
			return
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("Failed to release run lock", "error", err)
			}
		}()
	}

	res, err := s.engine.Run(ctx, s.state, s.sink, entry)
	s.state = res.State

	switch res.Status {
	case workflow.StatusPaused:
		s.emit(ctx, workflow.RequestInputEvent(res.Missing))
	case workflow.StatusFailed:
		if ctx.Err() != nil {
			return
		}
		s.log.Error("Workflow run failed", "error", err)
		s.emit(ctx, workflow.FinalEvent(fmt.Sprintf("Workflow failed: %v", err)))
	}
}

func (s *Session) emit(ctx context.Context, ev workflow.Event) {
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.log.Debug("Failed to deliver event", "type", ev.Type, "error", err)
	}
}
