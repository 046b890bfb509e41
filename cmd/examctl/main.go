package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/gokatarajesh/exam-runner/internal/auth"
	"github.com/gokatarajesh/exam-runner/internal/backend"
	"github.com/gokatarajesh/exam-runner/internal/config"
	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/logging"
	"github.com/gokatarajesh/exam-runner/internal/submission"
)

const usage = `usage: examctl <command> [flags]

commands:
  login     sign in and store the token
  logout    forget the stored token
  exams     list exams you can start
  results   list your submitted attempts
  take      take an exam: examctl take -exam <id>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load("configs/.env")
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New("examctl", cfg.Env, cfg.LogLevel).Level(zerolog.WarnLevel)

	client, err := backend.New(backend.Options{BaseURL: cfg.Backend.BaseURL, Timeout: cfg.Backend.ReadTimeout}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create backend client: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "login":
		err = runLogin(ctx, client)
	case "logout":
		err = removeToken()
	case "exams":
		err = runExams(ctx, client)
	case "results":
		err = runResults(ctx, client)
	case "take":
		err = runTakeCommand(ctx, cfg, client, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runLogin(ctx context.Context, client *backend.Client) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	res, err := client.Login(ctx, username, string(password))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := saveToken(res.Token); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", res.Username)
	return nil
}

// studentClient returns a client carrying the stored token.
func studentClient(client *backend.Client) (*backend.Client, auth.Credentials, error) {
	token, err := loadToken()
	if err != nil {
		return nil, auth.Credentials{}, err
	}
	creds, err := auth.NewCredentials(token)
	if err != nil {
		return nil, auth.Credentials{}, fmt.Errorf("stored token: %w", err)
	}
	if creds.Expired(time.Now()) {
		return nil, auth.Credentials{}, errors.New("stored token has expired; run examctl login")
	}
	return client.WithTokenSource(creds.TokenSource()), creds, nil
}

func runExams(ctx context.Context, client *backend.Client) error {
	api, _, err := studentClient(client)
	if err != nil {
		return err
	}
	exams, err := api.ActiveExams(ctx)
	if err != nil {
		return err
	}
	if len(exams) == 0 {
		fmt.Println("No active exams.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tQUESTIONS\tDURATION\tATTEMPTS LEFT")
	for _, e := range exams {
		duration := "untimed"
		if e.DurationMinutes != nil && *e.DurationMinutes > 0 {
			duration = fmt.Sprintf("%d min", *e.DurationMinutes)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\n", e.ID, e.Title, e.QuestionsCount, duration, e.AttemptsLeft())
	}
	return tw.Flush()
}

func runResults(ctx context.Context, client *backend.Client) error {
	api, _, err := studentClient(client)
	if err != nil {
		return err
	}
	results, err := api.StudentAnswers(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No submitted exams yet.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXAM\tTITLE\tSCORE\tSUBMITTED")
	for _, r := range results {
		score := 0
		for _, a := range r.Answers {
			score += a.Score
		}
		submitted := "-"
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%s\n", r.Exam.ID, r.Exam.Title, score, len(r.Answers), submitted)
	}
	return tw.Flush()
}

func runTakeCommand(ctx context.Context, cfg *config.App, client *backend.Client, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("take", flag.ExitOnError)
	examID := fs.Int64("exam", 0, "exam id to take")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *examID <= 0 {
		return errors.New("-exam is required")
	}

	api, creds, err := studentClient(client)
	if err != nil {
		return err
	}
	assets, err := exam.NewAssetResolver(cfg.Backend.AssetBaseURL)
	if err != nil {
		return err
	}
	emptyAnswers, err := submission.ParseEmptyAnswerEncoding(cfg.Session.EmptyAnswers)
	if err != nil {
		return err
	}

	return runTake(ctx, takeOptions{
		ExamID:   *examID,
		Fetcher:  api,
		Sender:   api,
		Form:     submission.FormOptions{EmptyAnswers: emptyAnswers, NonceField: cfg.Session.NonceField},
		Assets:   assets,
		PageSize: cfg.Session.NavigatorPageSize,
		Tick:     cfg.Session.TickInterval,
		Creds:    creds,
		In:       os.Stdin,
		Out:      os.Stdout,
	}, logger)
}

func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "examctl", "token"), nil
}

func saveToken(token string) error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// loadToken prefers EXAMCTL_TOKEN over the stored token.
func loadToken() (string, error) {
	if token := os.Getenv("EXAMCTL_TOKEN"); token != "" {
		return token, nil
	}
	path, err := tokenPath()
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", errors.New("not signed in; run examctl login")
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func removeToken() error {
	path, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	fmt.Println("Signed out.")
	return nil
}
