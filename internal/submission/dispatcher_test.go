package submission

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SubmitExam(ctx context.Context, examID int64, fields []Field) (*Receipt, error) {
	args := m.Called(ctx, examID, fields)
	receipt, _ := args.Get(0).(*Receipt)
	return receipt, args.Error(1)
}

type memoryGuard struct {
	mu       sync.Mutex
	receipts map[string]Receipt
	locked   map[string]bool
	err      error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{receipts: map[string]Receipt{}, locked: map[string]bool{}}
}

func (g *memoryGuard) Begin(_ context.Context, nonce string) (*Receipt, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, nil, g.err
	}
	if r, ok := g.receipts[nonce]; ok {
		return &r, func() {}, nil
	}
	if g.locked[nonce] {
		return nil, nil, ErrDuplicateInFlight
	}
	g.locked[nonce] = true
	return nil, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.locked, nonce)
	}, nil
}

func (g *memoryGuard) Complete(_ context.Context, nonce string, receipt Receipt) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.receipts[nonce] = receipt
	return nil
}

type sliceJournal struct {
	mu       sync.Mutex
	receipts []Receipt
}

func (j *sliceJournal) Record(_ context.Context, receipt Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.receipts = append(j.receipts, receipt)
	return nil
}

var fixedNow = time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)

func newRequest() Request {
	return Request{
		ExamID:  42,
		Nonce:   "nonce-1",
		Trigger: TriggerUser,
		Payload: BuildPayload(threeQuestionExam(), map[int64]int64{101: 2}),
	}
}

func TestDispatchReturnsReceipt(t *testing.T) {
	sender := &mockSender{}
	sender.On("SubmitExam", mock.Anything, int64(42), mock.MatchedBy(func(fields []Field) bool {
		return len(fields) == 5 && fields[4] == Field{Name: "attempt_nonce", Value: "nonce-1"}
	})).Return(&Receipt{ExamID: 42, StudentID: 9, Score: 1, TotalQuestions: 3}, nil).Once()

	journal := &sliceJournal{}
	d := NewDispatcher(sender, DispatcherOptions{
		Form:    FormOptions{NonceField: "attempt_nonce"},
		Journal: journal,
		Now:     func() time.Time { return fixedNow },
	}, zerolog.New(io.Discard))

	receipt, err := d.Dispatch(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Score)
	assert.Equal(t, 3, receipt.TotalQuestions)
	assert.Equal(t, "nonce-1", receipt.Nonce)
	assert.Equal(t, TriggerUser, receipt.Trigger)
	assert.Equal(t, fixedNow, receipt.SubmittedAt)
	require.Len(t, journal.receipts, 1)
	sender.AssertExpectations(t)
}

func TestDispatchRejectsMissingReceipt(t *testing.T) {
	sender := &mockSender{}
	sender.On("SubmitExam", mock.Anything, int64(42), mock.Anything).Return(nil, nil)

	guard := newMemoryGuard()
	journal := &sliceJournal{}
	d := NewDispatcher(sender, DispatcherOptions{Guard: guard, Journal: journal}, zerolog.Nop())

	receipt, err := d.Dispatch(context.Background(), newRequest())
	assert.Nil(t, receipt)
	assert.ErrorIs(t, err, ErrSubmissionFailure)
	assert.ErrorIs(t, err, ErrEmptyReceipt)
	assert.Empty(t, journal.receipts)
	assert.Empty(t, guard.receipts)
	sender.AssertExpectations(t)
}

func TestDispatchWrapsSenderErrors(t *testing.T) {
	sender := &mockSender{}
	sendErr := errors.New("connection reset")
	sender.On("SubmitExam", mock.Anything, int64(42), mock.Anything).Return(nil, sendErr)

	journal := &sliceJournal{}
	d := NewDispatcher(sender, DispatcherOptions{Journal: journal}, zerolog.Nop())

	_, err := d.Dispatch(context.Background(), newRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionFailure)
	assert.ErrorIs(t, err, sendErr)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, int64(42), failure.ExamID)
	assert.Empty(t, journal.receipts)
}

func TestDispatchReplaysStoredReceiptForNonce(t *testing.T) {
	sender := &mockSender{}
	sender.On("SubmitExam", mock.Anything, int64(42), mock.Anything).
		Return(&Receipt{ExamID: 42, Score: 2, TotalQuestions: 3}, nil).Once()

	d := NewDispatcher(sender, DispatcherOptions{Guard: newMemoryGuard()}, zerolog.Nop())

	first, err := d.Dispatch(context.Background(), newRequest())
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	sender.AssertNumberOfCalls(t, "SubmitExam", 1)
}

func TestDispatchRejectsConcurrentDuplicate(t *testing.T) {
	guard := newMemoryGuard()
	guard.locked["nonce-1"] = true

	sender := &mockSender{}
	d := NewDispatcher(sender, DispatcherOptions{Guard: guard}, zerolog.Nop())

	_, err := d.Dispatch(context.Background(), newRequest())
	assert.ErrorIs(t, err, ErrDuplicateInFlight)
	assert.ErrorIs(t, err, ErrSubmissionFailure)
	sender.AssertNotCalled(t, "SubmitExam", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchReleasesLockAfterFailure(t *testing.T) {
	guard := newMemoryGuard()
	sender := &mockSender{}
	sender.On("SubmitExam", mock.Anything, int64(42), mock.Anything).Return(nil, errors.New("502")).Once()
	sender.On("SubmitExam", mock.Anything, int64(42), mock.Anything).Return(&Receipt{Score: 3, TotalQuestions: 3}, nil).Once()

	d := NewDispatcher(sender, DispatcherOptions{Guard: guard}, zerolog.Nop())

	_, err := d.Dispatch(context.Background(), newRequest())
	require.Error(t, err)
	receipt, err := d.Dispatch(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, receipt.Score)
	assert.Equal(t, int64(42), receipt.ExamID)
}

func TestDispatchProceedsWhenGuardIsDown(t *testing.T) {
	guard := newMemoryGuard()
	guard.err = errors.New("redis: connection refused")

	sender := &mockSender{}
	sender.On("SubmitExam", mock.Anything, int64(42), mock.Anything).Return(&Receipt{Score: 1}, nil).Once()

	d := NewDispatcher(sender, DispatcherOptions{Guard: guard}, zerolog.Nop())
	_, err := d.Dispatch(context.Background(), newRequest())
	require.NoError(t, err)
	sender.AssertExpectations(t)
}
