package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/agent"
	"github.com/nidhogg/milgram/internal/api"
	"github.com/nidhogg/milgram/internal/archive"
	"github.com/nidhogg/milgram/internal/bus"
	"github.com/nidhogg/milgram/internal/command"
	"github.com/nidhogg/milgram/internal/config"
	"github.com/nidhogg/milgram/internal/gateway"
	"github.com/nidhogg/milgram/internal/memory"
	"github.com/nidhogg/milgram/internal/metrics"
	"github.com/nidhogg/milgram/internal/provider"
	"github.com/nidhogg/milgram/internal/social"
	"github.com/nidhogg/milgram/internal/world"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Milgram...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/milgram.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("cannot load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize reasoning router
	router := provider.NewRouter(logger)
	for _, bc := range cfg.Reasoning {
		provCfg := provider.Config{
			ID: bc.ID, Type: bc.Type, APIKey: bc.APIKey,
			Model: bc.Model, Endpoint: bc.Endpoint, MaxTokens: bc.MaxTokens,
		}
		switch bc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown backend type", zap.String("id", bc.ID), zap.String("type", bc.Type))
			continue
		}
		if bc.Default {
			router.SetDefault(bc.ID)
		}
	}

	// Memory store, optionally archived to Postgres
	ctx := context.Background()
	var store memory.Store
	var pgStore *memory.PostgresStore
	switch cfg.Storage.Driver {
	case "postgres":
		ps, pgErr := memory.NewPostgresStore(ctx, cfg.Storage.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, agents run without memories", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			store = ps
		}
	default:
		ss, sErr := memory.NewSQLiteStore(cfg.Storage.DSN, logger)
		if sErr != nil {
			logger.Warn("SQLite unavailable, agents run without memories", zap.Error(sErr))
		} else {
			store = ss
		}
	}
	if cfg.Storage.Cache && store != nil {
		cached, cErr := memory.NewCachedStore(store, logger)
		if cErr != nil {
			logger.Warn("memory cache unavailable, reads go to the store", zap.Error(cErr))
		} else {
			store = cached
		}
	}

	// Initialize durable social graph
	var graph *social.Graph
	if cfg.Graph.URI != "" {
		g, gErr := social.NewGraph(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, logger)
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without durable graph", zap.Error(gErr))
		} else {
			graph = g
		}
	}

	// Initialize environment and observers
	env := world.NewEnvironment(logger)
	m := metrics.New("milgram")
	env.AddObserver(m)

	var streamBus *bus.Bus
	if cfg.Bus.URL != "" {
		b, bErr := bus.New(cfg.Bus.URL, logger)
		if bErr != nil {
			logger.Warn("Redis unavailable, running without stream mirror", zap.Error(bErr))
		} else {
			streamBus = b
			env.AddObserver(b)
		}
	}

	var arch *archive.Archive
	if cfg.Archive.Enabled {
		if pgStore == nil {
			logger.Warn("archive requires postgres storage, running without archive")
		} else {
			arch = archive.New(pgStore.Pool(), logger)
			env.AddObserver(arch)
		}
	}

	hub := api.NewHub(logger)
	env.AddObserver(hub)

	// Seed the population
	for _, seed := range cfg.Population {
		opts := []agent.Option{
			agent.WithReasoner(router.For(seed.Name)),
			agent.WithNetwork(seed.Peers...),
			agent.WithLogger(logger),
		}
		if store != nil {
			opts = append(opts, agent.WithStore(store))
		}
		if seed.Focus != "" {
			opts = append(opts, agent.WithFocus(seed.Focus))
		}
		if seed.Influence != nil {
			opts = append(opts, agent.WithInfluence(*seed.Influence))
		}
		if len(seed.Beliefs) > 0 {
			opts = append(opts, agent.WithBeliefs(seed.Beliefs))
		}
		if len(seed.Values) > 0 {
			opts = append(opts, agent.WithValues(seed.Values))
		}

		a, aErr := agent.New(seed.Name, seed.Demographics, seed.Personality, opts...)
		if aErr != nil {
			logger.Warn("invalid agent seed", zap.String("name", seed.Name), zap.Error(aErr))
			continue
		}
		if rErr := env.RegisterStrict(a); rErr != nil {
			logger.Warn("duplicate agent seed", zap.String("name", seed.Name), zap.Error(rErr))
			continue
		}
		if seed.Reasoner != "" {
			router.Bind(seed.Name, seed.Reasoner)
		}
		if graph != nil {
			for _, peer := range seed.Peers {
				if kErr := graph.Know(ctx, seed.Name, peer); kErr != nil {
					logger.Warn("graph seed failed",
						zap.String("agent", seed.Name), zap.String("peer", peer), zap.Error(kErr))
				}
			}
		}
	}
	m.SetAgents(env.Len())
	logger.Info("Population seeded", zap.Int("agents", env.Len()))

	// Initialize world clock
	tick := time.Duration(cfg.Simulation.TickSeconds) * time.Second
	clock := world.NewClock(tick, cfg.Simulation.Speed, logger)
	clock.AddListener(m)
	clock.AddListener(hub)
	if cfg.Simulation.DecayRate > 0 {
		clock.AddListener(world.NewRelationDecay(env, graph, cfg.Simulation.DecayRate, logger))
	}
	reflector := world.NewReflector(env,
		time.Duration(cfg.Simulation.ReflectMinutes)*time.Minute,
		cfg.Simulation.ReflectRecall, logger)
	clock.AddListener(reflector)

	clock.Start()
	logger.Info("World clock started", zap.Duration("tick", tick), zap.Float64("speed", cfg.Simulation.Speed))

	// Initialize gateway
	gw := gateway.NewGateway(logger)

	// Wire the bridge BEFORE registering adapters (Register captures handler)
	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, gateway.CommandStatus(gw))
	bridge := gateway.NewBridge(env, gw, commands, logger)
	gw.SetHandler(bridge.Handle)

	restAdapter := gateway.NewRESTAdapter(logger)
	gw.Register(restAdapter)

	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		slackAdapter := gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger)
		gw.Register(slackAdapter)
	}

	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		discordAdapter := gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger)
		gw.Register(discordAdapter)
	}

	broadcaster := gateway.NewBroadcaster(gw, logger)

	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("one or more platforms stayed offline", zap.Error(err))
	}

	// HTTP surface
	handler := api.NewHandler(env, store, router, graph, clock, reflector,
		arch, broadcaster, gw, restAdapter, hub, m, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Milgram listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Milgram...")
	clock.Stop()
	srv.Shutdown(ctx)
	hub.Close()
	gw.Close()
	if streamBus != nil {
		streamBus.Close()
	}
	if graph != nil {
		graph.Close(ctx)
	}
	if store != nil {
		store.Close()
	}
}
