package submission

import (
	"fmt"
	"mime/multipart"
	"strconv"

	"github.com/gokatarajesh/exam-runner/internal/exam"
)

// EmptyAnswerEncoding controls how unanswered questions are written to the form.
type EmptyAnswerEncoding string

const (
	// EmptyAnswersOmit writes only questions[i][id] for an unanswered question.
	EmptyAnswersOmit EmptyAnswerEncoding = "omit"
	// EmptyAnswersPlaceholder adds questions[i][answers][0][id] with an empty value.
	EmptyAnswersPlaceholder EmptyAnswerEncoding = "placeholder"
)

// ParseEmptyAnswerEncoding accepts "omit" or "placeholder"; empty means omit.
func ParseEmptyAnswerEncoding(s string) (EmptyAnswerEncoding, error) {
	switch EmptyAnswerEncoding(s) {
	case "", EmptyAnswersOmit:
		return EmptyAnswersOmit, nil
	case EmptyAnswersPlaceholder:
		return EmptyAnswersPlaceholder, nil
	default:
		return "", fmt.Errorf("unknown empty answer encoding %q", s)
	}
}

// Payload lists every question of the exam in order with its selected answers.
type Payload struct {
	Questions []QuestionEntry `json:"questions"`
}

type QuestionEntry struct {
	ID      int64       `json:"id"`
	Answers []AnswerRef `json:"answers"`
}

type AnswerRef struct {
	ID int64 `json:"id"`
}

// Field is one multipart form field, kept in order.
type Field struct {
	Name  string
	Value string
}

// FormOptions controls the wire encoding of a Payload.
type FormOptions struct {
	EmptyAnswers EmptyAnswerEncoding
	// NonceField names the form field carrying the attempt nonce; empty disables it.
	NonceField string
}

// BuildPayload emits one entry per question, answered or not, in exam order.
func BuildPayload(def *exam.ExamDefinition, answers map[int64]int64) Payload {
	payload := Payload{Questions: make([]QuestionEntry, 0, len(def.Questions))}
	for _, q := range def.Questions {
		entry := QuestionEntry{ID: q.ID, Answers: []AnswerRef{}}
		if answerID, ok := answers[q.ID]; ok {
			entry.Answers = append(entry.Answers, AnswerRef{ID: answerID})
		}
		payload.Questions = append(payload.Questions, entry)
	}
	return payload
}

// Answered counts questions with at least one selected answer.
func (p Payload) Answered() int {
	n := 0
	for _, q := range p.Questions {
		if len(q.Answers) > 0 {
			n++
		}
	}
	return n
}

// Fields encodes the payload as questions[i][id] / questions[i][answers][j][id].
func (p Payload) Fields(opts FormOptions, nonce string) []Field {
	fields := make([]Field, 0, len(p.Questions)*2+1)
	for i, q := range p.Questions {
		fields = append(fields, Field{
			Name:  fmt.Sprintf("questions[%d][id]", i),
			Value: strconv.FormatInt(q.ID, 10),
		})
		if len(q.Answers) == 0 {
			if opts.EmptyAnswers == EmptyAnswersPlaceholder {
				fields = append(fields, Field{Name: fmt.Sprintf("questions[%d][answers][0][id]", i)})
			}
			continue
		}
		for j, a := range q.Answers {
			fields = append(fields, Field{
				Name:  fmt.Sprintf("questions[%d][answers][%d][id]", i, j),
				Value: strconv.FormatInt(a.ID, 10),
			})
		}
	}
	if opts.NonceField != "" && nonce != "" {
		fields = append(fields, Field{Name: opts.NonceField, Value: nonce})
	}
	return fields
}

// WriteFields writes fields to a multipart writer in order.
func WriteFields(w *multipart.Writer, fields []Field) error {
	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	return nil
}
