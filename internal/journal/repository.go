package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gokatarajesh/exam-runner/internal/submission"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is a journaled receipt with the subject that submitted it.
type Entry struct {
	submission.Receipt
	Subject    string    `json:"subject"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository persists submission receipts in Postgres.
type Repository struct {
	db DBTX
}

// NewRepository constructs a receipt journal.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const insertReceipt = `
INSERT INTO submission_receipts
    (nonce, subject, exam_id, student_id, score, total_questions, trigger, message, details, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (nonce) DO NOTHING`

// Record stores a receipt for subject. A nonce already present is left untouched.
func (r *Repository) Record(ctx context.Context, subject string, receipt submission.Receipt) error {
	nonce := receipt.Nonce
	if nonce == "" {
		nonce = uuid.NewString()
	}
	details := receipt.Details
	if details == nil {
		details = []submission.Detail{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode receipt details: %w", err)
	}

	_, err = r.db.Exec(ctx, insertReceipt,
		nonce,
		subject,
		receipt.ExamID,
		receipt.StudentID,
		receipt.Score,
		receipt.TotalQuestions,
		receipt.Trigger,
		receipt.Message,
		raw,
		receipt.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

const listReceipts = `
SELECT nonce, subject, exam_id, student_id, score, total_questions, trigger, message, details, submitted_at, recorded_at
FROM submission_receipts
WHERE subject = $1
ORDER BY submitted_at DESC
LIMIT $2`

// List returns the newest receipts recorded for subject.
func (r *Repository) List(ctx context.Context, subject string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.Query(ctx, listReceipts, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan receipts: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e       Entry
		details []byte
	)
	err := row.Scan(
		&e.Nonce,
		&e.Subject,
		&e.ExamID,
		&e.StudentID,
		&e.Score,
		&e.TotalQuestions,
		&e.Trigger,
		&e.Message,
		&details,
		&e.SubmittedAt,
		&e.RecordedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decode receipt details: %w", err)
		}
	}
	return e, nil
}

// ForSubject binds the repository to one subject so it can serve as a
// dispatcher journal.
func (r *Repository) ForSubject(subject string) submission.Journal {
	return subjectJournal{repo: r, subject: subject}
}

type subjectJournal struct {
	repo    *Repository
	subject string
}

func (j subjectJournal) Record(ctx context.Context, receipt submission.Receipt) error {
	return j.repo.Record(ctx, j.subject, receipt)
}
