package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/agent/tools"
	"github.com/camilorivas/mayordomo/internal/config"
	"github.com/camilorivas/mayordomo/internal/database"
	"github.com/camilorivas/mayordomo/internal/gcal"
	"github.com/camilorivas/mayordomo/internal/notify"
	"github.com/camilorivas/mayordomo/internal/schedule"
	"github.com/camilorivas/mayordomo/internal/telegram"
)

func main() {
	cfg := config.LoadFromEnv()

	if cfg.TelegramBotToken == "" {
		fatal("configuration", fmt.Errorf("TELEGRAM_BOT_TOKEN is required"))
	}

	db, err := database.New(cfg.DBPath)
	if err != nil {
		fatal("creating database", err)
	}
	defer db.Close()

	if count, err := db.CountPendingReminders(); err == nil {
		fmt.Printf("Database ready with %d pending reminder(s)\n", count)
	}

	notifyService := initNotifyService(cfg)

	// A missing agent leaves nil interfaces so downstream nil checks work.
	var botAgent telegram.AgentInvoker
	var schedulerAgent schedule.AgentInvoker
	if agentClient := initAgent(db, cfg); agentClient != nil {
		botAgent = agentClient
		schedulerAgent = agentClient
	}

	bot, err := telegram.NewBot(cfg.TelegramBotToken, botAgent, db)
	if err != nil {
		fatal("creating telegram bot", err)
	}
	if err := bot.Start(); err != nil {
		fatal("starting telegram bot", err)
	}

	scheduler := schedule.New(db, schedulerAgent, bot, notifyService, schedule.Config{
		PollIntervalMinutes: cfg.PollIntervalMinutes,
	})
	if err := scheduler.Start(); err != nil {
		fatal("starting scheduler", err)
	}

	waitForShutdown(scheduler, bot)
}

func initNotifyService(cfg *config.Config) *notify.Service {
	var emailNotifier notify.Notifier
	if cfg.ResendAPIKey != "" {
		emailNotifier = notify.NewResendNotifier(cfg.ResendAPIKey, cfg.AlertEmailFrom, cfg.AlertEmailTo)
		if emailNotifier != nil && emailNotifier.IsConfigured() {
			fmt.Println("Operator alert service configured (Resend)")
		}
	}

	return notify.NewService(emailNotifier)
}

func initAgent(db *database.DB, cfg *config.Config) *agent.Client {
	if cfg.AgentAPIURL == "" {
		fmt.Println("Warning: AGENT_API_URL not set, conversations and agent reminders disabled")
		return nil
	}

	registry := agent.NewToolRegistry()
	tools.RegisterReminderTools(registry, db, cfg.DefaultTimezone)
	tools.RegisterDateTimeTool(registry, cfg.DefaultTimezone)

	if gcalClient := initGCal(cfg); gcalClient != nil {
		tools.RegisterCalendarTools(registry, gcalClient)
	}

	fmt.Printf("Agent configured with %d tools\n", len(registry.Tools()))
	return agent.NewClient(cfg.AgentAPIURL, cfg.AgentAPIKey, registry)
}

func initGCal(cfg *config.Config) *gcal.Client {
	if _, err := os.Stat(cfg.GoogleCredentialsFile); err != nil {
		fmt.Println("Google Calendar: no credentials file, calendar tools disabled")
		return nil
	}

	client, err := gcal.NewClient(cfg.GoogleCredentialsFile, cfg.GoogleTokenFile)
	if err != nil {
		fmt.Printf("Warning: Failed to create Google Calendar client: %v\n", err)
		return nil
	}

	if client.IsAuthenticated() {
		fmt.Println("Google Calendar client initialized")
	}
	return client
}

func fatal(context string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", context, err)
	os.Exit(1)
}

func waitForShutdown(scheduler *schedule.Scheduler, bot *telegram.Bot) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("Shutting down...")

	scheduler.Stop()
	bot.Stop()
}
