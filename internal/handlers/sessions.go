package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fullstack-poc/usersview/internal/view"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ViewFactory creates the view of a new browser session
type ViewFactory func() *view.View

type session struct {
	view     *view.View
	cancel   context.CancelFunc
	lastSeen time.Time
}

// Sessions keeps one view per browser session.
// A view is mounted when its session starts and closed after ttl of inactivity.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	newView  ViewFactory
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessions creates an empty session registry
func NewSessions(newView ViewFactory, ttl time.Duration, logger *zap.Logger) *Sessions {
	return &Sessions{
		sessions: make(map[string]*session),
		newView:  newView,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the view of the session and marks the session as active
func (s *Sessions) Get(id string) (*view.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.view, true
}

// Create starts a new session and mounts its view in the background
func (s *Sessions) Create() (string, *view.View) {
	id := uuid.New().String()
	v := s.newView()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.sessions[id] = &session{view: v, cancel: cancel, lastSeen: s.now()}
	s.mu.Unlock()

	s.logger.Debug("session started", zap.String("session_id", id), zap.Int("sessions", s.Len()))

	go func() {
		if err := v.Mount(ctx); err != nil {
			s.logger.Warn("initial users load failed", zap.String("session_id", id), zap.Error(err))
		}
	}()

	return id, v
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than ttl and returns how many were closed
func (s *Sessions) Sweep() int {
	deadline := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(deadline) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.cancel()
		sess.view.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("sessions expired", zap.Int("count", len(expired)), zap.Int("remaining", s.Len()))
	}
	return len(expired)
}

// Run sweeps idle sessions on a schedule until ctx is done, then closes all of them.
// Sweeps run every half ttl, but not more often than once a second.
func (s *Sessions) Run(ctx context.Context) error {
	interval := (s.ttl / 2).Truncate(time.Second)
	if interval < time.Second {
		interval = time.Second
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.Close()
	return nil
}

// Close closes every session
func (s *Sessions) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.cancel()
		sess.view.Close()
	}
}
