// Command counsellor is a terminal counsellor client: register, watch the
// availability feed, accept waiting sessions and reply to counselees.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lumaproject/luma/internal/client"
	appconfig "github.com/lumaproject/luma/internal/config"
	"github.com/lumaproject/luma/internal/counsellor"
	pkgconfig "github.com/lumaproject/luma/pkg/config"
	"github.com/lumaproject/luma/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "luma counsellor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &appconfig.AppConfig{}
	if err := pkgconfig.GetConfigFromEnvVars(cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text", Service: "counsellor"})
	api := client.New(os.Getenv("LUMA_SERVER_URL"))

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	if token := os.Getenv("LUMA_COUNSELLOR_TOKEN"); token != "" {
		api.Token = token
		fmt.Println("Using existing counsellor token.")
	} else {
		if err := register(ctx, api, scanner); err != nil {
			return err
		}
	}

	feed := counsellor.NewFeed(api, cfg.Sync.AvailabilityPollInterval, log)
	feed.Start(ctx)
	defer feed.Stop()

	fmt.Println("Commands: list | accept <session-id> | msg <session-id> <text> | quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit":
			return nil

		case "list":
			pool := feed.Pool()
			if len(pool) == 0 {
				fmt.Println("No sessions waiting.")
				continue
			}
			for _, s := range pool {
				fmt.Printf("  %s  category=%s  waiting=%ds\n", s.SessionID, s.Category, s.WaitingSecs)
			}

		case "accept":
			if len(fields) != 2 {
				fmt.Println("usage: accept <session-id>")
				continue
			}
			if err := feed.Accept(ctx, fields[1]); err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			fmt.Printf("Accepted %s.\n", fields[1])

		case "msg":
			if len(fields) < 3 {
				fmt.Println("usage: msg <session-id> <text>")
				continue
			}
			text := strings.Join(fields[2:], " ")
			if err := api.SendCounsellorMessage(ctx, fields[1], text); err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			fmt.Println("Sent.")

		default:
			fmt.Println("Unknown command.")
		}
	}
}

// register walks the registration form, validates it locally and issues the
// request. The returned bearer token is printed so it can be reused.
func register(ctx context.Context, api *client.Client, scanner *bufio.Scanner) error {
	prompt := func(label string) string {
		fmt.Printf("%s: ", label)
		if !scanner.Scan() {
			return ""
		}
		return strings.TrimSpace(scanner.Text())
	}

	reg := counsellor.Registration{
		DisplayName: prompt("Display name"),
		Categories:  splitList(prompt("Categories (comma-separated)")),
		Languages:   splitList(prompt("Languages (comma-separated)")),
		Bio:         prompt("Bio (optional)"),
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("invalid registration: %w", err)
	}

	resp, err := api.Register(ctx, reg.Request())
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}

	fmt.Printf("Registered as %s (status %s).\n", resp.ID, resp.Status)
	fmt.Printf("Token (set LUMA_COUNSELLOR_TOKEN to reuse): %s\n", resp.Token)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
