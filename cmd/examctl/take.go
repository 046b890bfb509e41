package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/auth"
	"github.com/gokatarajesh/exam-runner/internal/countdown"
	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/navigator"
	"github.com/gokatarajesh/exam-runner/internal/session"
	"github.com/gokatarajesh/exam-runner/internal/submission"
)

const takeHelp = `commands:
  <k>      choose answer k for the current question
  n        next question (submits on the last one)
  p        previous question
  g <n>    go to question n
  l [page] list questions
  s        submit now
  q        quit without submitting
`

type takeOptions struct {
	ExamID   int64
	Fetcher  exam.Fetcher
	Sender   submission.Sender
	Form     submission.FormOptions
	Assets   *exam.AssetResolver
	PageSize int
	Tick     time.Duration
	Clock    countdown.Clock
	Creds    auth.Credentials
	In       io.Reader
	Out      io.Writer
}

type terminal struct {
	out      io.Writer
	s        *session.Session
	def      *exam.ExamDefinition
	assets   *exam.AssetResolver
	pageSize int
}

// runTake drives one exam attempt from line-oriented input.
func runTake(ctx context.Context, opts takeOptions, logger zerolog.Logger) error {
	events := make(chan session.Event, 8)
	dispatcher := submission.NewDispatcher(opts.Sender, submission.DispatcherOptions{Form: opts.Form}, logger)
	s := session.New(dispatcher, session.Options{
		Clock:        opts.Clock,
		TickInterval: opts.Tick,
		OnEvent: func(evt session.Event) {
			if evt.Type == session.EventTick {
				return
			}
			select {
			case events <- evt:
			default:
			}
		},
	}, logger)
	defer s.Close()

	def, err := s.Load(ctx, exam.NewLoader(opts.Fetcher, nil, logger), opts.ExamID)
	if err != nil {
		return err
	}

	t := &terminal{out: opts.Out, s: s, def: def, assets: opts.Assets, pageSize: opts.PageSize}
	t.intro()

	lines := readLines(opts.In)
	fmt.Fprint(t.out, "Press Enter to start, or q to quit: ")
	line, ok := <-lines
	if !ok || strings.TrimSpace(line) == "q" {
		fmt.Fprintln(t.out, "Not started.")
		return nil
	}

	if err := s.Start(); err != nil {
		return err
	}
	if snap := s.Snapshot(); snap.Deadline != nil && opts.Creds.ExpiresBefore(*snap.Deadline) {
		fmt.Fprintln(t.out, "Warning: your sign-in expires before the exam ends; submit early.")
	}
	t.render()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(t.out, "Input closed; leaving without submitting.")
				return nil
			}
			if quit := t.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		case evt := <-events:
			switch evt.Type {
			case session.EventExpired:
				fmt.Fprintln(t.out, "\nTime is up. Submitting your answers...")
			case session.EventSubmitFailed:
				fmt.Fprintf(t.out, "Submission failed: %v\nYour answers are kept; type s to retry.\n", evt.Err)
			}
		}
		if s.Status() == session.StatusSubmitted {
			t.outcome()
			return nil
		}
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (t *terminal) intro() {
	fmt.Fprintf(t.out, "%s\n", t.def.Title)
	if t.def.Description != "" {
		fmt.Fprintf(t.out, "%s\n", t.def.Description)
	}
	fmt.Fprintf(t.out, "Questions: %d\n", t.def.QuestionCount())
	if d, ok := t.def.Duration(); ok {
		fmt.Fprintf(t.out, "Time limit: %s\n", d)
	} else {
		fmt.Fprintln(t.out, "Time limit: none")
	}
	fmt.Fprintln(t.out, "Unanswered questions count as incorrect.")
}

// handle runs one command and reports whether the user quit.
func (t *terminal) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "":
		t.render()
		return false
	case "h", "?":
		fmt.Fprint(t.out, takeHelp)
		return false
	case "q":
		fmt.Fprintln(t.out, "Left without submitting.")
		return true
	case "n":
		_, err = t.s.Next(ctx)
	case "p":
		err = t.s.Previous()
	case "g":
		var n int
		n, err = strconv.Atoi(strings.TrimSpace(arg))
		if err == nil {
			err = navigator.Jump(t.s, n-1)
		}
	case "l":
		t.list(strings.TrimSpace(arg))
		return false
	case "s":
		fmt.Fprintln(t.out, "Submitting...")
		_, err = t.s.Submit(ctx, submission.TriggerUser)
	default:
		err = t.choose(cmd)
	}

	switch {
	case err == nil:
		if t.s.Status() == session.StatusInProgress {
			t.render()
		}
	case errors.Is(err, submission.ErrSubmissionFailure):
		// reported through the submit_failed event
	default:
		fmt.Fprintf(t.out, "%s\n", describe(err))
	}
	return false
}

func (t *terminal) choose(arg string) error {
	k, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("unknown command %q (h for help)", arg)
	}
	snap := t.s.Snapshot()
	q := t.def.Questions[snap.CurrentIndex]
	if k < 1 || k > len(q.Answers) {
		return fmt.Errorf("choose an answer between 1 and %d", len(q.Answers))
	}
	return t.s.SelectAnswer(q.ID, q.Answers[k-1].ID)
}

func (t *terminal) render() {
	snap := t.s.Snapshot()
	if snap.CurrentIndex >= len(t.def.Questions) {
		return
	}
	q := t.def.Questions[snap.CurrentIndex]

	fmt.Fprintf(t.out, "\nQuestion %d of %d", snap.CurrentIndex+1, snap.QuestionCount)
	if snap.RemainingSecs != nil {
		fmt.Fprintf(t.out, "  [%s left]", formatRemaining(*snap.RemainingSecs))
	}
	fmt.Fprintf(t.out, "\n%s\n", q.Text)
	if img := t.assets.Resolve(q.Image); img != "" {
		fmt.Fprintf(t.out, "Image: %s\n", img)
	}
	selected, answered := snap.Answers[q.ID]
	for i, a := range q.Answers {
		mark := " "
		if answered && selected == a.ID {
			mark = "*"
		}
		fmt.Fprintf(t.out, " %s %d) %s\n", mark, i+1, a.Text)
	}
	fmt.Fprint(t.out, "> ")
}

func (t *terminal) list(arg string) {
	snap := t.s.Snapshot()
	view := navigator.Build(t.def.Questions, snap.Answers, snap.CurrentIndex, t.pageSize)
	n := view.PageOf(snap.CurrentIndex)
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintln(t.out, "page must be a number")
			return
		}
		n = parsed - 1
	}
	page, err := view.Page(n)
	if err != nil {
		fmt.Fprintln(t.out, describe(err))
		return
	}
	fmt.Fprintf(t.out, "Page %d of %d, %d answered, %d unanswered\n", page.Number+1, page.Pages, view.Answered, view.Unanswered())
	for _, item := range page.Items {
		fmt.Fprintf(t.out, "  %3d  %s\n", item.Number, item.State)
	}
}

func (t *terminal) outcome() {
	snap := t.s.Snapshot()
	if snap.Outcome == nil {
		return
	}
	fmt.Fprintf(t.out, "\nSubmitted. Score: %d/%d\n", snap.Outcome.Score, snap.Outcome.TotalQuestions)
}

func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrIndexOutOfRange):
		return "No such question."
	case errors.Is(err, session.ErrDeadlinePassed):
		return "Time is over; answers can no longer change."
	case errors.Is(err, session.ErrSubmitInFlight):
		return "A submission is already in progress."
	case errors.Is(err, session.ErrNotInProgress):
		return "The exam is not in progress."
	case errors.Is(err, navigator.ErrPageOutOfRange):
		return "No such page."
	default:
		return err.Error()
	}
}

func formatRemaining(secs int) string {
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
