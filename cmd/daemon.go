package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hyeonsu-k/saju-matcher/internal/logger"
	"github.com/hyeonsu-k/saju-matcher/internal/match"
	"github.com/hyeonsu-k/saju-matcher/internal/store"
)

const defaultSchedule = "0 3 * * *"

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run matching sessions on a cron schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		daemon(cmd)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("schedule", "", "cron expression for matching runs. Overrides the config value.")

	viper.BindPFlag("daemon.schedule", daemonCmd.Flags().Lookup("schedule"))
}

func daemon(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	schedule := viper.GetString("daemon.schedule")
	if schedule == "" && config.Daemon != nil {
		schedule = config.Daemon.Schedule
	}
	if schedule == "" {
		schedule = defaultSchedule
	}

	db := openStore(config, logger)
	repo := store.NewRepo(db)
	generator := buildGenerator(ctx, cmd, config, logger)
	session := buildSession(config, repo, generator, logger)

	logger.Info("starting the matching daemon",
		zap.String("version", version),
		zap.String("schedule", schedule),
	)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(schedule, func() {
		runScheduled(ctx, session, logger)
	})
	if err != nil {
		logger.Fatal("invalid cron schedule", zap.String("schedule", schedule), zap.Error(err))
	}
	scheduler.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down the matching daemon")
	<-scheduler.Stop().Done()
}

func runScheduled(ctx context.Context, session *match.Session, logger *zap.Logger) {
	result, err := session.Run(ctx)
	switch {
	case errors.Is(err, match.ErrNoNewUsers), errors.Is(err, match.ErrNotEnoughUsers):
		logger.Info("skipping scheduled run", zap.String("reason", err.Error()))
		return
	case err != nil:
		logger.Error("scheduled matching run failed", zap.Error(err))
		return
	}

	logger.Info("scheduled matching run finished",
		zap.Int("accepted", len(result.Accepted)),
		zap.Bool("timed_out", result.TimedOut),
		zap.Int("errors", len(result.Errs)),
	)
}
