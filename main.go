package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"betdao/cmd"
	"betdao/config"
	"betdao/database"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if len(os.Args) > 1 && os.Args[1] == "replay" {
		if len(os.Args) < 3 {
			log.Fatal("usage: betdao replay <scenario.yaml>")
		}
		if err := cmd.Replay(ctx, os.Args[2], os.Stdout); err != nil {
			log.Fatal("Replay error: ", err)
		}
		return
	}

	// Watch the event stream
	if err := cmd.Run(ctx); err != nil {
		log.Fatal("Application error: ", err)
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: betdao migrate [up|down|status] [args...]")
	}

	cfg := config.Get()
	cmd.SetupLogging(cfg)
	if !cfg.HasDatabase() {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	databaseURL := cfg.GetDatabaseURL()

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp(databaseURL)
	case "down":
		steps := 1
		if len(os.Args) > 3 {
			parsed, err := strconv.Atoi(os.Args[3])
			if err != nil {
				return fmt.Errorf("invalid steps value: %s", os.Args[3])
			}
			steps = parsed
		}
		return database.MigrateDown(databaseURL, steps)
	case "status":
		status, err := database.MigrateStatus(databaseURL)
		if err != nil {
			return err
		}
		if !status.Applied {
			fmt.Println("No migrations applied")
			return nil
		}
		fmt.Printf("Current version: %d (dirty: %t)\n", status.Version, status.Dirty)
		return nil
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
