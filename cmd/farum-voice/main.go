// Command farum-voice runs the Farum voice companion backend: the tool and
// history API used by the realtime agents, and the transcript event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-voice/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/farum-voice/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-voice/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/farum-voice/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/farum-voice/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-voice/internal/app/agentflow"
	"github.com/PabloGalante/farum-voice/internal/app/conversation"
	"github.com/PabloGalante/farum-voice/internal/app/profile"
	"github.com/PabloGalante/farum-voice/internal/config"
	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

var (
	cfg *config.Config

	// Flag overrides for the environment.
	logLevel       string
	storageBackend string
	graphFile      string
)

var rootCmd = &cobra.Command{
	Use:   "farum-voice",
	Short: "Farum voice companion backend",
	Long: `farum-voice serves the tool, history and transcript APIs behind the
Farum multi-agent voice therapist.

Configuration comes from FARUM_* environment variables; flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if storageBackend != "" {
			os.Setenv("FARUM_STORAGE_BACKEND", storageBackend)
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
		if graphFile != "" {
			c.GraphFile = graphFile
		}
		observability.SetLevel(c.LogLevel)
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (or FARUM_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&storageBackend, "storage", "", "Storage backend: memory, sqlite, redis, firestore (or FARUM_STORAGE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&graphFile, "graph-file", "", "YAML agent graph for the default scenario (or FARUM_GRAPH_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(graphCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired services shared by every command.
type app struct {
	history   *conversation.Service
	profiles  *profile.Service
	registry  *agentflow.Registry
	moderator domain.Moderator
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := observability.Logger()
	a := &app{}

	scenarios, profiles, err := a.openStorage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.history = conversation.NewService(scenarios)
	a.profiles = profile.NewService(profiles)

	a.registry, err = buildRegistry(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	switch {
	case !cfg.Moderation:
		log.Info("moderation disabled")
	case cfg.UseMockLLM:
		log.Info("using mock moderator")
		a.moderator = llm.NewMockModerator()
	default:
		log.Info("using Vertex moderator", "project", cfg.GCPProjectID, "model", cfg.ModelName)
		m, err := llm.NewVertexModerator(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing Vertex moderator: %w", err)
		}
		a.moderator = m
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config) (domain.ScenarioStore, domain.ProfileStore, error) {
	log := observability.Logger()

	switch cfg.StorageBackend {
	case config.BackendSQLite:
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		s, err := sqlitestore.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("error initializing sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, s, nil

	case config.BackendRedis:
		log.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		s, err := redisstore.NewStore(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("error initializing redis store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, s, nil

	case config.BackendFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		s, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("error initializing firestore store: %w", err)
		}
		// 1 store, implements 2 interfaces
		a.closers = append(a.closers, s.Close)
		return s, s, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewScenarioStore(), memstore.NewProfileStore(), nil
	}
}

// buildRegistry registers the built-in therapist graph and, when configured,
// a YAML graph for the default scenario.
func buildRegistry(cfg *config.Config) (*agentflow.Registry, error) {
	therapist, err := agentflow.NewTherapistGraph()
	if err != nil {
		return nil, err
	}

	r := agentflow.NewRegistry(cfg.DefaultScenario)
	r.Register(domain.DefaultScenario, therapist)

	switch {
	case cfg.GraphFile != "":
		g, err := agentflow.LoadGraphFile(cfg.GraphFile)
		if err != nil {
			return nil, err
		}
		r.Register(cfg.DefaultScenario, g)
	case cfg.DefaultScenario != domain.DefaultScenario:
		r.Register(cfg.DefaultScenario, therapist)
	}
	return r, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
