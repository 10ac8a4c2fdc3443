package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/dictation"
	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/protocol"
	"github.com/loqalabs/loqa-dictate/internal/textbuild"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'replay', 'history', 'check' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "replay":
		err = runReplayCommand(os.Args[2:])
	case "history":
		err = runHistoryCommand(os.Args[2:])
	case "check":
		err = runCheckCommand(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runReplayCommand(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file; empty uses defaults and LOQA_* env")
	file := fs.String("file", "-", "Transcript script, - for stdin")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	in := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	lines, err := parseScript(in)
	if err != nil {
		return err
	}
	return replay(cfg.Dictation, lines, os.Stdout)
}

func runHistoryCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file; empty uses defaults and LOQA_* env")
	limit := fs.Int("limit", 20, "Number of deliveries to show")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()
	store, err := eventstore.Open(ctx, cfg.EventStore, log)
	if err != nil {
		return err
	}
	defer store.Close()
	return printHistory(ctx, store, *limit, os.Stdout)
}

func runCheckCommand(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file; empty uses defaults and LOQA_* env")
	fs.Parse(args)

	if _, err := config.Load(*configPath); err != nil {
		return err
	}
	fmt.Println("config valid")
	return nil
}

// scriptLine is one recognizer hypothesis. Scripts hold one per line as
// "P: words" for a partial or "F: words" for a final transcript; blank lines
// and lines starting with # are skipped.
type scriptLine struct {
	Text  string
	Final bool
}

func parseScript(r io.Reader) ([]scriptLine, error) {
	var lines []scriptLine
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		kind, text, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected P: or F: prefix", n)
		}
		switch strings.ToUpper(strings.TrimSpace(kind)) {
		case "P":
			lines = append(lines, scriptLine{Text: strings.TrimSpace(text)})
		case "F":
			lines = append(lines, scriptLine{Text: strings.TrimSpace(text), Final: true})
		default:
			return nil, fmt.Errorf("line %d: unknown kind %q", n, kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// replay runs the script through one dictation session and prints every
// visible change and delivery.
func replay(cfg config.DictationConfig, lines []scriptLine, w io.Writer) error {
	session := dictation.NewSession(dictation.DefaultSessionID,
		textbuild.NewBuilder(dictation.BuilderOptions(cfg)...),
		dictation.StopWordsFromConfig(cfg),
		time.Now())

	for i, line := range lines {
		out := session.Apply(line.Text, line.Final, 0, time.Now())
		kind := "P"
		if line.Final {
			kind = "F"
		}
		switch {
		case out.Command == dictation.CommandSend || out.Command == dictation.CommandEdit:
			if out.Delivery == "" {
				fmt.Fprintf(w, "%d %s ! nothing to %s\n", i+1, kind, out.Command)
			} else {
				fmt.Fprintf(w, "%d %s > %s: %s\n", i+1, kind, out.Command, out.Delivery)
			}
		case out.Command == dictation.CommandCancel:
			fmt.Fprintf(w, "%d %s x cancelled\n", i+1, kind)
		case out.Dropped != "":
			fmt.Fprintf(w, "%d %s - %s\n", i+1, kind, out.Dropped)
		case out.Changed:
			fmt.Fprintf(w, "%d %s | %s\n", i+1, kind, out.Text)
		}
	}
	if _, err := fmt.Fprintf(w, "= %s\n", session.Snapshot().Text); err != nil {
		return err
	}
	return nil
}

type deliveryLister interface {
	ListRecent(ctx context.Context, eventType string, limit int) ([]eventstore.Event, error)
}

func printHistory(ctx context.Context, store deliveryLister, limit int, w io.Writer) error {
	events, err := store.ListRecent(ctx, "dictation.sent", limit)
	if err != nil {
		return err
	}
	for _, evt := range events {
		var d protocol.Delivery
		if err := json.Unmarshal(evt.Payload, &d); err != nil {
			fmt.Fprintf(w, "%s %s <unreadable payload>\n", evt.CreatedAt.Format(time.RFC3339), evt.SessionID)
			continue
		}
		mode := "sent"
		if d.Editable {
			mode = "edit"
		}
		target := d.SessionID
		if d.Channel != "" {
			target += " /" + d.Channel
		}
		fmt.Fprintf(w, "%s %s %s: %s\n", evt.CreatedAt.Format(time.RFC3339), target, mode, d.Text)
	}
	return nil
}
