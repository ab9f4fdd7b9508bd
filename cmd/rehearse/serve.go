package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rehearse/internal/api"
	"github.com/MikeSquared-Agency/rehearse/internal/chat"
	"github.com/MikeSquared-Agency/rehearse/internal/events"
	"github.com/MikeSquared-Agency/rehearse/internal/history"
	"github.com/MikeSquared-Agency/rehearse/internal/interview"
	"github.com/MikeSquared-Agency/rehearse/internal/pipeline"
	"github.com/MikeSquared-Agency/rehearse/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local companion HTTP server",
	Long:  "Serves session, report, chat, history and question endpoints over the same stored state the CLI uses.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides REHEARSE_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app) error {
		port := a.cfg.Port
		if servePort != 0 {
			port = servePort
		}
		if a.cfg.APIToken == "" {
			a.log.Warn("REHEARSE_API_TOKEN not set, companion API is unauthenticated")
		}

		// Backend calls made by the server carry the stored session token.
		gate := &tokenGate{app: a}
		srv := api.NewServer(port, a.cfg.APIToken, api.Deps{
			Gate:      gate,
			Reports:   report.NewRenderer(a.client, a.results, a.catalog, a.log),
			Chat:      chat.NewSession(a.client, a.log),
			History:   history.NewBrowser(a.client, a.cfg.PageSize, a.log),
			Questions: interview.NewLoader(a.client, a.results, a.log),
			Catalog:   a.catalog,
			Logger:    a.log,
		})

		stopWatch := watchProgress(a)
		defer stopWatch()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}


// watchProgress logs pipeline progress published by other rehearse
// processes, such as a submit run while the server is up.
func watchProgress(a *app) func() {
	if a.cfg.NatsURL == "" {
		return func() {}
	}
	nc, err := events.NewNATSClient(a.cfg.NatsURL, a.cfg.NatsToken, a.log)
	if err != nil {
		a.log.WithError(err).Warn("NATS unavailable, not watching pipeline progress")
		return func() {}
	}
	sub, err := nc.Subscribe(events.SubjectPipelineProgress, func(_ string, data []byte) {
		var p pipeline.Progress
		if err := json.Unmarshal(data, &p); err != nil {
			a.log.WithError(err).Debug("skipping progress message")
			return
		}
		a.log.WithFields(logrus.Fields{
			"run_id":  p.RunID,
			"stage":   p.Stage,
			"percent": p.Percent,
		}).Info("pipeline progress")
	})
	if err != nil {
		a.log.WithError(err).Warn("watch pipeline progress")
		nc.Close()
		return func() {}
	}
	return func() {
		sub.Unsubscribe()
		nc.Close()
	}
}
