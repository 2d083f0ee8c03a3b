// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Command craftmind runs a Minecraft companion agent: it connects to the
// game through an MCP server, plans actions with a local LLM and keeps an
// episodic journal of what happened.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/craftmind/craftmind/pkg/agent"
	"github.com/craftmind/craftmind/pkg/config"
	"github.com/craftmind/craftmind/pkg/diary"
	"github.com/craftmind/craftmind/pkg/llm"
	"github.com/craftmind/craftmind/pkg/mcp"
	"github.com/craftmind/craftmind/pkg/memory"
	memollama "github.com/craftmind/craftmind/pkg/memory/ollama"
	"github.com/craftmind/craftmind/pkg/memory/qdrant"
	"github.com/craftmind/craftmind/pkg/places"
	"github.com/craftmind/craftmind/pkg/task"
	"github.com/craftmind/craftmind/pkg/telemetry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	initConfig := flag.Bool("init", false, "Write a default config file and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *initConfig {
		path := *configPath
		if path == "" {
			path = "craftmind.yaml"
		}
		if err := config.WriteDefault(path); err != nil {
			fatal(err)
		}
		fmt.Printf("wrote default config to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var metrics *telemetry.LoopMetrics
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig("craftmind", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
		if metrics, err = telemetry.NewLoopMetrics(); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
	}

	client, err := mcp.NewClientWithStdio(cfg.Game.MCP.Command, cfg.Game.MCP.Args, mcp.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("start mcp server: %w", err)
	}
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("discover tools: %w", err)
	}
	idx := mcp.NewIndex(tools, cfg.AllowedToolSet())
	if idx.Len() == 0 {
		return fmt.Errorf("no allow-listed tools offered by the server")
	}
	logger.Info("connected to game server",
		"boot_id", client.BootID(),
		"tools_total", len(tools),
		"tools_allowed", idx.Names())

	if _, err := client.CallToolText(ctx, "joinGame", map[string]any{
		"host":     cfg.Game.Host,
		"port":     cfg.Game.Port,
		"username": cfg.Game.Username,
	}, false); err != nil {
		return fmt.Errorf("join game: %w", err)
	}

	diaryStore, err := diary.NewStore(cfg.Diary.Path)
	if err != nil {
		return fmt.Errorf("open diary: %w", err)
	}

	placeStore, err := places.Open(cfg.Places.Path)
	if err != nil {
		return fmt.Errorf("open places: %w", err)
	}
	defer placeStore.Close()

	recaller, err := buildRecaller(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gate := diary.NewGatekeeper(diaryStore, diary.Options{
		MinScore:     cfg.Diary.MinScore,
		MaxPerMinute: cfg.Diary.MaxPerMinute,
		MaxPer10s:    cfg.Diary.MaxPer10s,
		DedupWindow:  cfg.Diary.DedupWindow,
		RollupFlush:  cfg.Diary.RollupFlush,
		RollupMin:    cfg.Diary.RollupMin,
		Logger:       logger,
		Metrics:      metrics,
		Observer: func(e diary.Entry) {
			recaller.Index(ctx, e.Text, map[string]any{"kind": string(e.Kind), "tool": e.Tool})
		},
	})
	go gate.Run(ctx)

	provider := llm.NewRetrying(llm.NewOllama(cfg.LLM.BaseURL), cfg.LLM.Retries)

	loop, err := agent.New(agent.Deps{
		Username:      cfg.Game.Username,
		ChatPrefix:    cfg.Agent.ChatPrefix,
		CmdPrefix:     cfg.Agent.CmdPrefix,
		PollInterval:  cfg.Agent.PollInterval,
		ReadTimeLimit: cfg.Agent.ReadTimeLimit,
		Heartbeat:     cfg.Agent.Heartbeat,
		MaxHistory:    cfg.Agent.MaxHistory,
		SeenLimit:     cfg.Agent.SeenLimit,
		PlanRetries:   cfg.Agent.PlanRetries,
		Tools:         client,
		Index:         idx,
		Provider:      provider,
		Model:         cfg.LLM.Model,
		Runner: &task.Runner{
			Invoker:           client,
			PollInterval:      cfg.Task.PollInterval,
			MaxAttempts:       cfg.Task.MaxAttempts,
			MaxAttemptsGather: cfg.Task.MaxAttemptsGather,
			StallMax:          cfg.Task.StallMax,
			Logger:            logger,
		},
		Gate:    gate,
		Diary:   diaryStore,
		Places:  placeStore,
		Recall:  recaller,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if _, err := client.CallToolText(ctx, "sendChat", map[string]any{
		"message": fmt.Sprintf("%s is online. Chat prefix: %s, command prefix: %s",
			cfg.Game.Username, cfg.Agent.ChatPrefix, cfg.Agent.CmdPrefix),
	}, false); err != nil {
		logger.Warn("announce failed", "error", err)
	}

	if _, _, err := gate.Offer(ctx, diary.Candidate{
		Kind:  diary.KindStatus,
		Text:  fmt.Sprintf("Joined %s:%d as %s.", cfg.Game.Host, cfg.Game.Port, cfg.Game.Username),
		Meta:  map[string]any{"boot_id": client.BootID()},
		Force: true,
	}); err != nil {
		logger.Warn("startup diary write failed", "error", err)
	}

	return loop.Run(ctx)
}

// buildRecaller assembles the optional semantic memory stack. Disabled
// memory yields a nil recaller, which indexes and recalls nothing.
func buildRecaller(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*memory.Recaller, error) {
	if !cfg.Memory.Enabled {
		return nil, nil
	}

	var store memory.VectorStore
	switch cfg.Memory.Provider {
	case "qdrant":
		s, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		store = s
	case "", "inmemory":
		store = memory.NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unknown memory provider %q", cfg.Memory.Provider)
	}

	embedder := memollama.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
	return memory.NewRecaller(ctx, store, embedder, cfg.Memory.Collection, cfg.Memory.VectorSize, cfg.Memory.TopK, logger)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
