package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/backend"
)

// Views served by the catalog.
const (
	ViewActiveExams   = "active_exams"
	ViewResults       = "results"
	ViewDashboard     = "dashboard"
	ViewSubscriptions = "subscriptions"
)

var allViews = []string{ViewActiveExams, ViewResults, ViewDashboard, ViewSubscriptions}

// Source is the student-scoped backend API behind the catalog.
type Source interface {
	ActiveExams(ctx context.Context) ([]backend.ExamSummary, error)
	StudentAnswers(ctx context.Context) ([]backend.ExamResult, error)
	Dashboard(ctx context.Context) (*backend.Dashboard, error)
	Subscriptions(ctx context.Context) (*backend.Subscriptions, error)
}

var _ Source = (*backend.Client)(nil)

// Service reads student catalog views through an optional cache keyed per subject.
type Service struct {
	cache  Cache
	logger zerolog.Logger
}

// NewService builds a catalog service. A nil cache disables caching.
func NewService(cache Cache, logger zerolog.Logger) *Service {
	return &Service{
		cache:  cache,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

func cacheKey(subject, view string) string {
	return fmt.Sprintf("catalog:%s:%s", subject, view)
}

// ActiveExams lists exams the student can start.
func (s *Service) ActiveExams(ctx context.Context, subject string, src Source) ([]backend.ExamSummary, error) {
	return cached(ctx, s, subject, ViewActiveExams, src.ActiveExams)
}

// Results lists the student's submitted attempts.
func (s *Service) Results(ctx context.Context, subject string, src Source) ([]backend.ExamResult, error) {
	return cached(ctx, s, subject, ViewResults, src.StudentAnswers)
}

// Dashboard returns the student landing view.
func (s *Service) Dashboard(ctx context.Context, subject string, src Source) (*backend.Dashboard, error) {
	return cached(ctx, s, subject, ViewDashboard, src.Dashboard)
}

// Subscriptions returns the student's performance summary.
func (s *Service) Subscriptions(ctx context.Context, subject string, src Source) (*backend.Subscriptions, error) {
	return cached(ctx, s, subject, ViewSubscriptions, src.Subscriptions)
}

// Invalidate drops every cached view for subject, e.g. after a submission.
func (s *Service) Invalidate(ctx context.Context, subject string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(allViews))
	for _, view := range allViews {
		keys = append(keys, cacheKey(subject, view))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("catalog invalidate failed")
	}
}

// cached serves a view from the cache, falling back to fetch. Cache failures
// are logged and never fail the read.
func cached[T any](ctx context.Context, s *Service, subject, view string, fetch func(context.Context) (T, error)) (T, error) {
	if s.cache == nil || subject == "" {
		return fetch(ctx)
	}

	key := cacheKey(subject, view)
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("view", view).Msg("catalog cache read failed")
	} else if ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		s.logger.Warn().Str("view", view).Msg("discarding undecodable catalog entry")
	}

	out, err := fetch(ctx)
	if err != nil {
		return out, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		s.logger.Warn().Err(err).Str("view", view).Msg("catalog encode failed")
		return out, nil
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		s.logger.Warn().Err(err).Str("view", view).Msg("catalog cache write failed")
	}
	return out, nil
}
