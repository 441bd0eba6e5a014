package main

import (
	"bufio"
	"chat-sync/client"
	"chat-sync/domain"
	"chat-sync/identity"
	"chat-sync/realtime"
	"chat-sync/repositories"
	"chat-sync/session"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the session lifecycle, and
// centralizes error reporting so every defer (database close, claim
// release) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core wiring: resolver, broker, repositories, client
	resolver, err := identity.NewResolver(config.DefaultCountryCode,
		config.placeholderPrefixes(identity.DefaultPlaceholderPrefixes))
	if err != nil {
		return fmt.Errorf("resolver config: %w", err)
	}
	broker := realtime.NewBroker(log)
	c := client.New(
		log,
		resolver,
		repositories.NewIdentityRepository(db, log),
		repositories.NewClaimRepository(db, log),
		repositories.NewMessageRepository(db, log, broker),
		broker,
		session.Config{
			HeartbeatInterval: config.HeartbeatInterval,
			MismatchTolerance: config.MismatchTolerance,
			FailureCeiling:    config.FailureCeiling,
			BackoffBase:       config.BackoffBase,
			BackoffMax:        config.BackoffMax,
			OnDegraded: func(err error) {
				color.Yellow.Println("Connectivity degraded, still signed in:", err)
			},
		},
	)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Sign in: resolve, claim, open the identity's conversation
	id, err := c.ResolveIdentity(config.PhoneNumber)
	if err != nil {
		return fmt.Errorf("phone number refused, please fix PHONE_NUMBER: %w", err)
	}

	handle, err := c.ClaimSession(ctx, id, func() {
		color.Red.Println("Signed out: this number is now active in another window")
		stop()
	})
	if err != nil {
		return fmt.Errorf("claim failed for %s: %w", id, err)
	}
	defer func() { _ = handle.Release(context.Background()) }()

	conv := domain.ConversationForIdentity(id)
	engine, err := handle.OpenConversation(ctx, conv.ID)
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.OnListChanged(render)
	if err := engine.Resync(ctx); err != nil {
		return err
	}

	color.Green.Printf("Signed in as %s. Type a message, Ctrl+C to quit\n", id)

	// 6. Stdin send loop
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down gracefully...")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if _, err := engine.Send(ctx, line); err != nil {
				color.Red.Println("Send refused:", err)
			}
		}
	}
}

// render repaints the conversation after every list change.
func render(messages []domain.Message) {
	fmt.Print("\033[H\033[2J")
	for _, msg := range messages {
		switch msg.State {
		case domain.Pending:
			color.Gray.Printf("… %s\n", msg.Text)
		case domain.Failed:
			color.Red.Printf("! %s (failed, retry manually)\n", msg.Text)
		default:
			if msg.Author == domain.RoleAssistant {
				color.Cyan.Printf("[%s] %s\n", msg.CreatedAt.Local().Format("15:04:05"), msg.Text)
			} else {
				color.Green.Printf("[%s] %s\n", msg.CreatedAt.Local().Format("15:04:05"), msg.Text)
			}
		}
	}
}
