// Command counselee is a terminal counselee client: chat with the triage bot,
// escalate into an anonymous session when prompted, and keep the session log
// in sync with the server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/internal/client"
	appconfig "github.com/lumaproject/luma/internal/config"
	"github.com/lumaproject/luma/internal/counselee"
	"github.com/lumaproject/luma/internal/triage"
	pkgconfig "github.com/lumaproject/luma/pkg/config"
	"github.com/lumaproject/luma/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "luma counselee: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &appconfig.AppConfig{}
	if err := pkgconfig.GetConfigFromEnvVars(cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text", Service: "counselee"})

	api := client.New(os.Getenv("LUMA_SERVER_URL"))
	controller := counselee.NewController(api, cfg.Sync.MessagePollInterval, log)
	engine := triage.NewEngine(api, triage.TimerScheduler{}, controller.Start, triage.Config{
		UrgentPromptDelay: cfg.Triage.UrgentPromptDelay,
		NormalPromptDelay: cfg.Triage.NormalPromptDelay,
	}, log)

	fmt.Println("Luma counselee client. Chat with LumaBot, or type /start to request a session.")
	fmt.Println("Commands: /start, /accept (after a session prompt), /end, /quit")

	ctx := context.Background()
	go renderLoop(engine, controller)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit":
			controller.End(ctx)
			return scanner.Err()

		case "/start":
			if err := controller.Start(ctx, engine.Category()); err != nil {
				fmt.Printf("! could not start session: %v\n", err)
			}

		case "/accept":
			if err := engine.AcceptPrompt(ctx); err != nil {
				fmt.Printf("! could not start session: %v\n", err)
			}

		case "/end":
			controller.End(ctx)
			fmt.Println("Session ended.")

		default:
			if controller.Status().Syncing() {
				if err := controller.Send(ctx, line); err != nil {
					fmt.Printf("! %v\n", err)
				}
			} else {
				// Classification failures already leave an apology in the
				// transcript; nothing more to surface here.
				_ = engine.Process(ctx, line)
			}
		}
	}
	controller.End(ctx)
	return scanner.Err()
}

// renderLoop prints transcript and session-log entries as they appear. Both
// views are replace-on-poll, so rendering tracks counts rather than diffs.
func renderLoop(engine *triage.Engine, controller *counselee.Controller) {
	var botPrinted, sessionPrinted int

	for range time.Tick(200 * time.Millisecond) {
		transcript := engine.Transcript()
		for ; botPrinted < len(transcript); botPrinted++ {
			e := transcript[botPrinted]
			if e.Sender == api.SenderUser {
				continue
			}
			tag := "LumaBot"
			if e.Urgent {
				tag = "LumaBot [URGENT]"
			}
			fmt.Printf("\n%s: %s\n> ", tag, e.Text)
		}

		entries := controller.Messages()
		if len(entries) < sessionPrinted {
			sessionPrinted = 0
		}
		for ; sessionPrinted < len(entries); sessionPrinted++ {
			e := entries[sessionPrinted]
			if e.Sender == api.SenderCounselee {
				continue
			}
			fmt.Printf("\n[%s] %s\n> ", e.Sender, e.Text)
		}
	}
}
