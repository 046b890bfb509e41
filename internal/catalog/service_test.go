package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-runner/internal/backend"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("redis down")
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

type countingSource struct {
	calls map[string]int
	err   error
}

func (s *countingSource) hit(view string) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[view]++
}

func (s *countingSource) ActiveExams(context.Context) ([]backend.ExamSummary, error) {
	s.hit(ViewActiveExams)
	if s.err != nil {
		return nil, s.err
	}
	return []backend.ExamSummary{{ID: 7, Title: "Algebra I", AttemptLimit: 2}}, nil
}

func (s *countingSource) StudentAnswers(context.Context) ([]backend.ExamResult, error) {
	s.hit(ViewResults)
	return []backend.ExamResult{{Exam: backend.ExamSummary{ID: 7}}}, nil
}

func (s *countingSource) Dashboard(context.Context) (*backend.Dashboard, error) {
	s.hit(ViewDashboard)
	return &backend.Dashboard{AnswerCount: 3}, nil
}

func (s *countingSource) Subscriptions(context.Context) (*backend.Subscriptions, error) {
	s.hit(ViewSubscriptions)
	return &backend.Subscriptions{AveragePercentage: 50}, nil
}

func TestViewsAreCachedPerSubject(t *testing.T) {
	cache := newMemoryCache()
	svc := NewService(cache, zerolog.Nop())
	src := &countingSource{}
	ctx := context.Background()

	first, err := svc.ActiveExams(ctx, "42", src)
	require.NoError(t, err)
	second, err := svc.ActiveExams(ctx, "42", src)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls[ViewActiveExams])

	_, err = svc.ActiveExams(ctx, "43", src)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls[ViewActiveExams])

	dash, err := svc.Dashboard(ctx, "42", src)
	require.NoError(t, err)
	assert.Equal(t, 3, dash.AnswerCount)
	_, err = svc.Dashboard(ctx, "42", src)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls[ViewDashboard])
}

func TestInvalidateDropsSubjectViews(t *testing.T) {
	cache := newMemoryCache()
	svc := NewService(cache, zerolog.Nop())
	src := &countingSource{}
	ctx := context.Background()

	_, err := svc.Results(ctx, "42", src)
	require.NoError(t, err)
	_, err = svc.Subscriptions(ctx, "42", src)
	require.NoError(t, err)

	svc.Invalidate(ctx, "42")

	_, err = svc.Results(ctx, "42", src)
	require.NoError(t, err)
	_, err = svc.Subscriptions(ctx, "42", src)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls[ViewResults])
	assert.Equal(t, 2, src.calls[ViewSubscriptions])
}

func TestCacheFailureFallsThrough(t *testing.T) {
	cache := newMemoryCache()
	cache.failGet = true
	svc := NewService(cache, zerolog.Nop())
	src := &countingSource{}

	exams, err := svc.ActiveExams(context.Background(), "42", src)
	require.NoError(t, err)
	assert.Len(t, exams, 1)
}

func TestFetchErrorsAreNotCached(t *testing.T) {
	cache := newMemoryCache()
	svc := NewService(cache, zerolog.Nop())
	src := &countingSource{err: errors.New("backend down")}

	_, err := svc.ActiveExams(context.Background(), "42", src)
	assert.Error(t, err)
	assert.Empty(t, cache.entries)
}

func TestNilCacheAlwaysFetches(t *testing.T) {
	svc := NewService(nil, zerolog.Nop())
	src := &countingSource{}

	_, _ = svc.ActiveExams(context.Background(), "42", src)
	_, _ = svc.ActiveExams(context.Background(), "42", src)
	assert.Equal(t, 2, src.calls[ViewActiveExams])
	svc.Invalidate(context.Background(), "42")
}
