package main

import (
	"errors"
	"os/signal"
	"syscall"

	"cmm/internal/agent"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var agentOnce bool

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Report this host's CPU, RAM, disk and uptime to the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfg.Agent.ServerID == "" {
			return errors.New("AGENT_SERVER_ID is required")
		}
		rep, err := agent.NewReporter(agent.Options{
			APIURL:    cfg.Agent.APIURL,
			IngestKey: cfg.IngestKey,
			Interval:  cfg.Agent.Interval,
			Timeout:   cfg.Agent.Timeout,
			Collector: agent.NewHostCollector(cfg.Agent.ServerID, cfg.Agent.DiskPath),
			Logger:    log.Named("agent").With(zap.String("server_id", cfg.Agent.ServerID)),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if agentOnce {
			_, err := rep.ReportOnce(ctx)
			return err
		}
		log.Info("agent started",
			zap.String("api_url", cfg.Agent.APIURL),
			zap.Duration("interval", cfg.Agent.Interval))
		return rep.Run(ctx)
	},
}

func init() {
	agentCmd.Flags().BoolVar(&agentOnce, "once", false, "send a single sample and exit")
}
