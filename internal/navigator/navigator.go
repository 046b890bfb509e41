// Package navigator derives the question index shown next to an exam.
// It holds no state: every View is computed from the session's cursor and answers.
package navigator

import (
	"errors"

	"github.com/gokatarajesh/exam-runner/internal/exam"
)

const DefaultPageSize = 10

// Question states.
const (
	StateAnswered  = "answered"
	StateCurrent   = "current"
	StateVisited   = "visited"
	StateUnvisited = "unvisited"
)

var ErrPageOutOfRange = errors.New("navigator page out of range")

// Cursor is the navigation surface of a session.
type Cursor interface {
	GoTo(index int) error
}

// Item is one entry of the index.
type Item struct {
	Index      int    `json:"index"`
	Number     int    `json:"number"`
	QuestionID int64  `json:"question_id"`
	State      string `json:"state"`
}

// View is the classified index, split into pages for display.
type View struct {
	Items        []Item `json:"items"`
	CurrentIndex int    `json:"current_index"`
	PageSize     int    `json:"page_size"`
	Pages        int    `json:"pages"`
	Answered     int    `json:"answered"`
}

// Page is one slice of the view.
type Page struct {
	Number int    `json:"number"`
	Pages  int    `json:"pages"`
	Items  []Item `json:"items"`
}

// Build classifies every question. Answered wins over current, so the cursor
// sitting on an answered question still reports it as answered.
func Build(questions []exam.Question, answers map[int64]int64, current, pageSize int) View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	view := View{
		Items:        make([]Item, len(questions)),
		CurrentIndex: current,
		PageSize:     pageSize,
		Pages:        (len(questions) + pageSize - 1) / pageSize,
	}
	for i, q := range questions {
		state := Classify(i, current, hasAnswer(answers, q.ID))
		if state == StateAnswered {
			view.Answered++
		}
		view.Items[i] = Item{Index: i, Number: i + 1, QuestionID: q.ID, State: state}
	}
	return view
}

// Classify returns the state of the question at index.
func Classify(index, current int, answered bool) string {
	switch {
	case answered:
		return StateAnswered
	case index == current:
		return StateCurrent
	case index < current:
		return StateVisited
	default:
		return StateUnvisited
	}
}

// Page returns page n (zero-based).
func (v View) Page(n int) (Page, error) {
	if n < 0 || (n >= v.Pages && !(n == 0 && v.Pages == 0)) {
		return Page{}, ErrPageOutOfRange
	}
	start := n * v.PageSize
	end := start + v.PageSize
	if end > len(v.Items) {
		end = len(v.Items)
	}
	return Page{Number: n, Pages: v.Pages, Items: v.Items[start:end]}, nil
}

// PageOf returns the page containing index.
func (v View) PageOf(index int) int {
	if index < 0 {
		return 0
	}
	return index / v.PageSize
}

// Unanswered counts questions without an answer.
func (v View) Unanswered() int {
	return len(v.Items) - v.Answered
}

// Jump moves the cursor through the same GoTo used by linear navigation.
func Jump(cursor Cursor, index int) error {
	return cursor.GoTo(index)
}

func hasAnswer(answers map[int64]int64, questionID int64) bool {
	_, ok := answers[questionID]
	return ok
}
