package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hyeonsu-k/saju-matcher/internal/ai"
	"github.com/hyeonsu-k/saju-matcher/internal/ai/gemini"
	"github.com/hyeonsu-k/saju-matcher/internal/logger"
	"github.com/hyeonsu-k/saju-matcher/internal/match"
	"github.com/hyeonsu-k/saju-matcher/internal/notify"
	"github.com/hyeonsu-k/saju-matcher/internal/secrets"
	"github.com/hyeonsu-k/saju-matcher/internal/store"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var prompt = promptui.Select{
	Label: "Run the matching session?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one matching session across all stored users",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before running the session")
	runCmd.Flags().Bool("no-ai", false, "skip AI escalation and rely on rule-based scores only")
	runCmd.Flags().String("cache-file", "", "path of the pair cache file. Overrides the config value.")

	viper.BindPFlag("matching.cache-file", runCmd.Flags().Lookup("cache-file"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the saju-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	db := openStore(config, logger)
	repo := store.NewRepo(db)

	generator := buildGenerator(ctx, cmd, config, logger)
	session := buildSession(config, repo, generator, logger)

	newUsers, err := repo.FetchUsers(ctx, false)
	if err != nil {
		logger.Fatal("fetching new users", zap.Error(err))
	}
	existing, err := repo.FetchUsers(ctx, true)
	if err != nil {
		logger.Fatal("fetching existing users", zap.Error(err))
	}

	logger.Info("matching population",
		zap.Int("new_users", len(newUsers)),
		zap.Int("existing_users", len(existing)),
	)

	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	result, err := session.Run(ctx)
	switch {
	case errors.Is(err, match.ErrNoNewUsers), errors.Is(err, match.ErrNotEnoughUsers):
		logger.Info("exiting", zap.String("reason", err.Error()))
		return
	case err != nil:
		logger.Fatal("matching session failed", zap.Error(err))
	}

	for _, accepted := range result.Accepted {
		logger.Info("match persisted",
			zap.Uint64("user_low", accepted.Low),
			zap.Uint64("user_high", accepted.High),
			zap.Int("score", accepted.Score),
		)
	}

	if result.TimedOut {
		logger.Warn("session hit its deadline; results are partial",
			zap.Int("accepted", len(result.Accepted)),
		)
		return
	}

	logger.Info("matching complete", zap.Int("accepted", len(result.Accepted)))
}

func openStore(config *Config, logger *zap.Logger) *gorm.DB {
	dsn := ""
	if config.Database != nil {
		dsn = config.Database.DSN
	}
	if dsn == "" {
		dsn = viper.GetString("database.dsn")
	}

	db, err := store.Open(dsn, viper.GetBool("debug"))
	if err != nil {
		logger.Fatal("opening the database",
			zap.Error(err),
			zap.String("hint", "set database.dsn in the config or the SAJU_DATABASE_DSN environment variable"),
		)
	}
	return db
}

// buildGenerator returns nil when AI escalation is disabled; the
// escalator then falls back to rule-based scores for every pair.
func buildGenerator(ctx context.Context, cmd *cobra.Command, config *Config, logger *zap.Logger) ai.Generator {
	if cmd != nil {
		if flag := cmd.Flag("no-ai"); flag != nil && flag.Value.String() == "true" {
			logger.Info("AI escalation disabled by flag")
			return nil
		}
	}

	if config.AI == nil || config.AI.Gemini == nil {
		logger.Warn("AI escalation not configured; relying on rule-based scores only")
		return nil
	}

	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		logger.Warn("unsupported ai provider; skipping escalation", zap.String("provider", config.AI.Provider))
		return nil
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.AI.Gemini.APIKey,
		File:  config.AI.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		logger.Warn("gemini api key unavailable; relying on rule-based scores only", zap.Error(err))
		return nil
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, config.AI.Gemini.Model)
	if err != nil {
		logger.Warn("building gemini generator failed; relying on rule-based scores only", zap.Error(err))
		return nil
	}

	logger.Info("AI escalation enabled",
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()),
	)

	return generator
}

func buildSession(config *Config, repo *store.Repo, generator ai.Generator, logger *zap.Logger) *match.Session {
	matching := config.Matching
	if matching == nil {
		matching = &MatchingConfig{}
	}

	cache := match.NewPairCache(
		matching.CacheFile,
		logger,
		match.WithCacheLimits(matching.CacheMaxEntries, matching.CacheMaxEntries*4/5),
	)

	var escalatorOpts []match.EscalatorOption
	if matching.EscalationThreshold > 0 {
		escalatorOpts = append(escalatorOpts, match.WithThreshold(matching.EscalationThreshold))
	}
	if config.AI != nil && config.AI.Gemini != nil {
		if timeout := parseDuration(config.AI.Gemini.CallTimeout, logger); timeout > 0 {
			escalatorOpts = append(escalatorOpts, match.WithCallTimeout(timeout))
		}
	}
	escalator := match.NewEscalator(generator, logger, escalatorOpts...)

	var orchestratorOpts []match.OrchestratorOption
	if matching.TopK > 0 {
		orchestratorOpts = append(orchestratorOpts, match.WithTopK(matching.TopK))
	}
	orchestrator := match.NewOrchestrator(cache, escalator, logger, orchestratorOpts...)

	sessionCfg := match.SessionConfig{
		AcceptThreshold: matching.AcceptThreshold,
		Deadline:        parseDuration(matching.SessionDeadline, logger),
		UnknownGender:   match.UnknownGenderPolicy(matching.UnknownGender),
	}

	return match.NewSession(repo, buildNotifier(config, repo, logger), orchestrator, sessionCfg, logger)
}

func buildNotifier(config *Config, repo *store.Repo, logger *zap.Logger) match.Notifier {
	if config.Push == nil || !config.Push.Enabled {
		return nil
	}

	privateKey, err := secrets.Load(secrets.Source{
		Name:  "vapid private key",
		Value: config.Push.VAPIDPrivateKey,
		File:  config.Push.VAPIDPrivateKeyFile,
		Env:   "VAPID_PRIVATE_KEY",
	})
	if err != nil {
		logger.Warn("push notifications disabled", zap.Error(err))
		return nil
	}

	return notify.NewWebPush(repo, config.Push.VAPIDPublicKey, privateKey, config.Push.Subscriber, logger)
}

func parseDuration(raw string, logger *zap.Logger) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("unparseable duration in config; using default", zap.String("value", raw), zap.Error(err))
		return 0
	}
	return d
}
