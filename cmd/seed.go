package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hyeonsu-k/saju-matcher/internal/logger"
	"github.com/hyeonsu-k/saju-matcher/internal/saju"
	"github.com/hyeonsu-k/saju-matcher/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert fixture users for local development",
	Run: func(_ *cobra.Command, _ []string) {
		seed()
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type fixtureUser struct {
	name   string
	mbti   string
	gender string
	year   int
	month  int
	day    int
	hour   int
}

var fixtures = []fixtureUser{
	{"지민", "ENFP", store.GenderMale, 1998, 3, 14, 9},
	{"서연", "INFP", store.GenderFemale, 1999, 7, 2, 21},
	{"민준", "ISTJ", store.GenderMale, 1997, 11, 23, 6},
	{"하은", "ENTJ", store.GenderFemale, 2000, 1, 9, 14},
	{"도윤", "INFJ", store.GenderMale, 1998, 5, 30, 17},
	{"지우", "ESFP", store.GenderFemale, 2001, 9, 18, 11},
	{"시우", "INTP", store.GenderMale, 1996, 12, 4, 23},
	{"수아", "ENFJ", store.GenderFemale, 1999, 4, 27, 3},
}

func seed() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	db := openStore(config, logger)
	repo := store.NewRepo(db)

	created := 0
	for _, fixture := range fixtures {
		pillars, err := saju.Encode(fixture.year, fixture.month, fixture.day, fixture.hour)
		if err != nil {
			logger.Fatal("encoding pillars for fixture user",
				zap.String("name", fixture.name),
				zap.Error(err),
			)
		}

		user := &store.User{
			Name:         fixture.name,
			MBTI:         fixture.mbti,
			TraitSummary: saju.TraitSummary(pillars),
			Gender:       fixture.gender,
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			logger.Warn("creating fixture user failed",
				zap.String("name", fixture.name),
				zap.Error(err),
			)
			continue
		}
		created++

		logger.Debug("fixture user created",
			zap.Uint64("id", user.ID),
			zap.String("name", user.Name),
			zap.String("mbti", user.MBTI),
		)
	}

	logger.Info("seed complete", zap.Int("created", created), zap.Int("fixtures", len(fixtures)))
}
