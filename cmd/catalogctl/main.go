package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"github.com/user/kshows/internal/config"
	"github.com/user/kshows/internal/logging"
	"github.com/user/kshows/internal/repository"
	"github.com/user/kshows/internal/service"
	"github.com/user/kshows/internal/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	app := &cli.App{
		Name:  "catalogctl",
		Usage: "Korean TV series catalog maintenance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   cfg.LogLevel,
			},
		},
		Before: func(c *cli.Context) error {
			logging.Init(logging.Config{Level: c.String("log-level"), Format: "console"})
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "seed",
				Usage:  "Import the TMDB dataset into an empty catalog",
				Action: func(c *cli.Context) error { return seedCommand(c, cfg) },
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dataset",
						Aliases: []string{"d"},
						Usage:   "Path to the JSON dataset",
						Value:   cfg.SeedDatasetPath,
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Generate overview embeddings for shows that have none",
				Action: func(c *cli.Context) error { return embedCommand(c, cfg) },
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Minimum delay between embedding calls",
						Value: cfg.BackfillInterval,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records fetched per page",
						Value: cfg.BackfillBatchSize,
					},
				},
			},
			{
				Name:   "check-index",
				Usage:  "Verify that the vector index exists",
				Action: func(c *cli.Context) error { return checkIndexCommand(c, cfg) },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Fatal().Err(err).Msg("命令执行失败")
	}
}

func openRepos(cfg *config.Config) (*repository.Repositories, func(), error) {
	db, err := repository.InitDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	if err := repository.Migrate(db, cfg.EmbeddingDimensions); err != nil {
		return nil, nil, err
	}
	sqlDB, _ := db.DB()
	return repository.NewRepositories(db), func() { sqlDB.Close() }, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func seedCommand(c *cli.Context, cfg *config.Config) error {
	ctx, stop := signalContext(c.Context)
	defer stop()

	repos, closeDB, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := service.NewCatalogService(repos.Show).EnsureSeeded(ctx, c.String("dataset"))
	if err != nil {
		return err
	}
	if !report.Seeded {
		logging.Info().Int64("existing", report.Existing).Msg("[catalogctl] 表中已有数据，跳过导入")
	}
	return printJSON(report)
}

func embedCommand(c *cli.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()

	repos, closeDB, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if ok, err := repos.Show.HasVectorIndex(ctx); err != nil {
		return err
	} else if !ok {
		logging.Warn().Str("index", repository.VectorIndexName).Msg("[catalogctl] 向量索引不存在，相似推荐将不可用")
	}

	hf := utils.NewHuggingFaceClient(cfg.EmbeddingAPIURL, cfg.HFToken, cfg.EmbeddingDimensions, cfg.EmbeddingTimeout)
	backfill := service.NewEmbeddingBackfill(repos.Show, hf, c.Duration("interval"), c.Int("batch-size"))

	report, err := backfill.Run(ctx)
	if perr := printJSON(report); perr != nil {
		return perr
	}
	return err
}

func checkIndexCommand(c *cli.Context, cfg *config.Config) error {
	repos, closeDB, err := openRepos(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ok, err := repos.Show.HasVectorIndex(c.Context)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("向量索引 %s 不存在", repository.VectorIndexName)
	}
	fmt.Printf("向量索引 %s 已就绪\n", repository.VectorIndexName)
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
