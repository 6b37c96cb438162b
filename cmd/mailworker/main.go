package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"scribe/internal/config"
	"scribe/internal/mailworker"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(jsonHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if config.IMAPUser == "" || config.IMAPPassword == "" {
		slog.Error("SCRIBE_IMAP_USER and SCRIBE_IMAP_PASSWORD are required")
		os.Exit(1)
	}

	imapAdapter, err := mailworker.DialIMAP(config.IMAPHost, config.IMAPPort, config.IMAPUser, config.IMAPPassword)
	if err != nil {
		slog.Error("failed to connect to imap server", "error", err)
		os.Exit(1)
	}
	defer imapAdapter.Close()

	smtpClient := mailworker.NewSMTPClient(config.SMTPHost, config.SMTPPort, config.SMTPUser, config.SMTPPassword, config.SMTPFrom)
	frontend := mailworker.NewFrontendClient(config.FrontendBaseURL, config.FrontendPollPeriod)

	w := mailworker.New(imapAdapter, frontend, smtpClient, mailworker.Config{
		Folders: mailworker.Folders{
			Inbox:               config.FolderInbox,
			Done:                config.FolderDone,
			Error:               config.FolderError,
			EpisodeSources:      config.FolderEpisodeSources,
			EpisodeSourcesDone:  config.FolderEpisodeSourcesDone,
			EpisodeSourcesError: config.FolderEpisodeSourcesError,
		},
		PollInterval:     config.PollInterval,
		Concurrency:      config.MailConcurrency,
		OpTimeout:        config.FrontendPollWait,
		RetryAttempts:    config.ShowNotesRetries,
		RetryBackoffBase: config.RetryBackoffBase,
		ReturnAddress:    config.ReturnAddress,
		FromAddress:      config.SMTPFrom,
		DefaultTag:       config.DefaultTag,
		DigestTag:        config.DigestTag,
	})

	workerDone := make(chan struct{})
	go w.Run(ctx, workerDone)

	slog.Info("scribe mail worker started", "poll_interval", config.PollInterval, "inbox", config.FolderInbox)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case <-ctx.Done():
		slog.Info("context cancelled")
	}
	close(workerDone)
	slog.Info("mail worker exited gracefully")
}
