package cmd

import (
	"log"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "saju-matcher"
)

// Config is the full configuration file shape.
type Config struct {
	Database *DatabaseConfig `mapstructure:"database"`
	AI       *AIConfig       `mapstructure:"ai"`
	Matching *MatchingConfig `mapstructure:"matching"`
	Push     *PushConfig     `mapstructure:"push"`
	Daemon   *DaemonConfig   `mapstructure:"daemon"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey      string `mapstructure:"api-key"`
	APIKeyFile  string `mapstructure:"api-key-file"`
	Model       string `mapstructure:"model"`
	CallTimeout string `mapstructure:"call-timeout"`
}

type MatchingConfig struct {
	TopK                int    `mapstructure:"top-k"`
	EscalationThreshold int    `mapstructure:"escalation-threshold"`
	AcceptThreshold     int    `mapstructure:"accept-threshold"`
	SessionDeadline     string `mapstructure:"session-deadline"`
	UnknownGender       string `mapstructure:"unknown-gender"`
	CacheFile           string `mapstructure:"cache-file"`
	CacheMaxEntries     int    `mapstructure:"cache-max-entries"`
}

type PushConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Subscriber          string `mapstructure:"subscriber"`
	VAPIDPublicKey      string `mapstructure:"vapid-public-key"`
	VAPIDPrivateKey     string `mapstructure:"vapid-private-key"`
	VAPIDPrivateKeyFile string `mapstructure:"vapid-private-key-file"`
}

type DaemonConfig struct {
	Schedule string `mapstructure:"schedule"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "saju-matcher computes saju/MBTI compatibility matches between registered users",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}
	if err := viper.BindEnv("database.dsn", "SAJU_DATABASE_DSN"); err != nil {
		log.Fatalf("binding SAJU_DATABASE_DSN environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is saju-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// A missing config file is fine: every key has a default or an env
	// binding. A malformed one is not.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal(err)
		}
	}
}

// getConfig decodes the merged viper settings (file, env, flags) into
// the typed Config. Weak typing lets yaml scalars fill int/bool fields.
func getConfig() (*Config, error) {
	config := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, err
	}

	return config, nil
}
