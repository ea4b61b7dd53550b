// chatcli is an interactive terminal client for exercising the engine
// end-to-end without a frontend: pick a character, type, get replies.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/chenmingyu/reverie/backend/internal/cache"
	"github.com/chenmingyu/reverie/backend/internal/companion"
	"github.com/chenmingyu/reverie/backend/internal/config"
	"github.com/chenmingyu/reverie/backend/internal/dispatch"
	"github.com/chenmingyu/reverie/backend/internal/generate"
	"github.com/chenmingyu/reverie/backend/internal/model/character"
	"github.com/chenmingyu/reverie/backend/internal/session"
)

var characterID = flag.String("character", "naruto-uzumaki", "Character to chat with")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !cfg.AI.Enabled() {
		log.Fatal("set ARK_MODEL and ARK_API_KEY before using chatcli")
	}

	generator, err := generate.NewArkGenerator(cfg.AI.Ark)
	if err != nil {
		log.Fatalf("failed to initialize generator: %v", err)
	}

	roster := character.NewMemoryStore(character.Seed())
	char, ok := roster.FindByID(*characterID)
	if !ok {
		log.Fatalf("unknown character %q", *characterID)
	}

	sessions := session.NewStore(roster, cfg.Engine.WindowSize)
	responses := cache.New(cfg.Engine.CacheTTL)
	queue := dispatch.New(dispatch.Config{
		Workers:        1,
		MaxRetries:     cfg.Engine.MaxRetries,
		RequestTimeout: cfg.Engine.RequestTimeout,
	}, generator, sessions, responses, nil)
	engine := companion.New(companion.Config{
		Model:         cfg.AI.Model,
		RequestBudget: cfg.Engine.RequestTimeout,
	}, roster, sessions, responses, queue)

	queue.Start(ctx)
	defer queue.Stop()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Println(boldGreen("Reverie chat console"))
	fmt.Printf("Talking to %s (%s)\n", boldCyan(char.Name), char.Title)
	fmt.Println(dim(char.Greeting))
	fmt.Println("Type your message and press Enter. Type 'exit' or press Ctrl+C to quit.")
	fmt.Println()

	sessionID := uuid.NewString()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(boldGreen("you> "))
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" {
			break
		}

		start := time.Now()
		result, err := engine.Chat(ctx, sessionID, char.ID, "", text)
		if err != nil {
			color.Red("error: %v", err)
			continue
		}
		if result.Outcome != dispatch.OutcomeSuccess {
			color.Red("request finished with outcome %s", result.Outcome)
			continue
		}

		suffix := ""
		if result.Cached {
			suffix = dim(" (cached)")
		}
		fmt.Printf("%s %s%s\n", boldCyan(char.Name+">"), result.Reply, suffix)
		fmt.Println(dim(fmt.Sprintf("mood=%s took=%s", result.Emotion, time.Since(start).Round(time.Millisecond))))
	}
}
