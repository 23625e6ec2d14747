// Command rapport runs an interactive escalating-persona chat session on the
// terminal. Typing "bye" (or EOF) ends the conversation and finalizes the
// participant's persisted record.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/rapport-labs/rapport/oracle"
	"github.com/rapport-labs/rapport/pipeline"
	"github.com/rapport-labs/rapport/session"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to pipeline config JSON file")
		participant = flag.String("participant", "", "Participant code to resume (new session when empty)")
		storePath   = flag.String("store", "", "Session store path (overrides config)")
		personaPack = flag.String("persona-pack", "", "Path to YAML persona pack (overrides config)")
		statsOnly   = flag.Bool("stats", false, "Print aggregate store statistics and exit")
		showStatus  = flag.Bool("status", true, "Show level and affinity after each turn")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := pipeline.DefaultConfig()
	if *configFile != "" {
		loaded, err := pipeline.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *personaPack != "" {
		cfg.PersonaPack = *personaPack
	}
	if cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	p, err := pipeline.New(&cfg)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *statsOnly {
		stats, err := p.Stats(ctx)
		if err != nil {
			log.Fatalf("Failed to read stats: %v", err)
		}
		fmt.Printf("participants: %d\nmessages: %d\n", stats.Participants, stats.Messages)
		return
	}

	sess, err := startOrResume(ctx, p, *participant)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	fmt.Printf("Session %s started. Type a message, or \"bye\" to finish.\n", sess.ParticipantCode)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you > ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "bye") {
			break
		}

		result, err := p.Turn(ctx, sess, text)
		if err != nil {
			if errors.Is(err, oracle.ErrUnavailable) {
				fmt.Println("(the assistant is unavailable right now, please try the same message again)")
				continue
			}
			log.Fatalf("Turn failed: %v", err)
		}

		fmt.Printf("bot > %s\n", result.Reply)
		if result.LeveledUp && *showStatus {
			fmt.Printf("(the conversation feels closer now: level %d)\n", result.Level)
		}
		if *showStatus {
			fmt.Printf("[level %d | affinity %d]\n", result.Level, sess.AffinityTotal)
		}
		if result.PersistErr != nil {
			slog.Error("persist failed; will retry on next turn", "error", result.PersistErr)
		}
	}

	if err := p.EndSession(ctx, sess); err != nil {
		slog.Error("final persist failed", "error", err)
	}
	fmt.Printf("Conversation finished. Participant code: %s\n", sess.ParticipantCode)
}

func startOrResume(ctx context.Context, p *pipeline.Pipeline, code string) (*session.Session, error) {
	if code != "" {
		return p.ResumeSession(ctx, code)
	}
	return p.StartSession(ctx)
}
