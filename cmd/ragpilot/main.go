// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/ragpilot"
	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/ingest"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ragpilot",
		Usage: "Retrieval-augmented chat over Redis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL",
				Value:   "redis://localhost:6379",
				EnvVars: []string{"RAGPILOT_REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "model",
				Usage:   "Chat model name",
				EnvVars: []string{"RAGPILOT_MODEL"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"RAGPILOT_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "llm-host",
				Usage:   "OpenAI-compatible service host URL (empty for hosted OpenAI)",
				EnvVars: []string{"RAGPILOT_LLM_HOST"},
			},
			&cli.Int64Flag{
				Name:    "history-length",
				Usage:   "Number of conversation turns kept per session",
				Value:   10,
				EnvVars: []string{"RAGPILOT_HISTORY_LENGTH"},
			},
			&cli.DurationFlag{
				Name:    "history-ttl",
				Usage:   "How long idle sessions survive",
				Value:   time.Hour,
				EnvVars: []string{"RAGPILOT_HISTORY_TTL"},
			},
			&cli.IntFlag{
				Name:    "context-length",
				Usage:   "Number of documents retrieved per question",
				Value:   4,
				EnvVars: []string{"RAGPILOT_CONTEXT_LENGTH"},
			},
			&cli.DurationFlag{
				Name:    "llm-timeout",
				Usage:   "How long a chat consumer waits for the next fragment",
				Value:   30 * time.Second,
				EnvVars: []string{"RAGPILOT_LLM_TIMEOUT"},
			},
			&cli.BoolFlag{
				Name:    "cache-enabled",
				Usage:   "Enable the semantic cache",
				Value:   true,
				EnvVars: []string{"RAGPILOT_CACHE_ENABLED"},
			},
			&cli.Float64Flag{
				Name:    "cache-distance",
				Usage:   "Maximum vector distance for a semantic cache hit",
				Value:   0.1,
				EnvVars: []string{"RAGPILOT_CACHE_DISTANCE"},
			},
			&cli.Float64Flag{
				Name:    "score-threshold",
				Usage:   "Minimum similarity score for retrieved context documents",
				Value:   0.75,
				EnvVars: []string{"RAGPILOT_SCORE_THRESHOLD"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP chat server",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						Value:   ":8000",
						EnvVars: []string{"RAGPILOT_ADDR"},
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask one question from the terminal",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "Session id (a fresh one is generated when empty)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Load a CSV file into a new vector index",
				ArgsUsage: "<file.csv>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent ingestion workers",
					},
				},
			},
			{
				Name:      "promote",
				Usage:     "Point the retrieval alias at an index",
				ArgsUsage: "<index>",
				Action:    promoteCommand,
			},
			{
				Name:      "reset",
				Usage:     "Clear one session's conversation history",
				ArgsUsage: "<session>",
				Action:    resetCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newPilot builds the pilot from the app-level flags.
func newPilot(c *cli.Context) (*ragpilot.Pilot, error) {
	var aiOpts []ai.ConfigOption
	if model := c.String("model"); model != "" {
		aiOpts = append(aiOpts, ai.WithChatModel(model))
	}
	if model := c.String("embedding-model"); model != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingModel(model))
	}
	if host := c.String("llm-host"); host != "" {
		aiOpts = append(aiOpts, ai.WithHost(host))
	}

	return ragpilot.NewPilot(c.String("redis-url"),
		ragpilot.WithAIConfig(ai.NewConfig(aiOpts...)),
		ragpilot.WithHistoryLength(c.Int64("history-length")),
		ragpilot.WithHistoryTTL(c.Duration("history-ttl")),
		ragpilot.WithContextLength(c.Int("context-length")),
		ragpilot.WithStreamTimeout(c.Duration("llm-timeout")),
		ragpilot.WithCacheEnabled(c.Bool("cache-enabled")),
		ragpilot.WithCacheDistance(c.Float64("cache-distance")),
		ragpilot.WithScoreThreshold(c.Float64("score-threshold")),
	)
}

func serveCommand(c *cli.Context) error {
	pilot, err := newPilot(c)
	if err != nil {
		return fmt.Errorf("failed to build pilot: %w", err)
	}
	defer pilot.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(pilot)
	return server.Run(ctx, c.String("addr"))
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	sessionID := c.String("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	pilot, err := newPilot(c)
	if err != nil {
		return fmt.Errorf("failed to build pilot: %w", err)
	}
	defer pilot.Close()

	chain, err := pilot.Chain(sessionID)
	if err != nil {
		return fmt.Errorf("failed to build chain: %w", err)
	}

	for fragment := range chain.Ask(c.Context, question) {
		fmt.Print(fragment)
	}
	fmt.Println()
	fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	return nil
}

func ingestCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("CSV file path is required")
	}

	pilot, err := newPilot(c)
	if err != nil {
		return fmt.Errorf("failed to build pilot: %w", err)
	}
	defer pilot.Close()

	var workerOpts []ingest.Option
	if size := c.Int("pool-size"); size > 0 {
		workerOpts = append(workerOpts, ingest.WithPoolSize(size))
	}

	worker, err := pilot.NewIngestWorker(workerOpts...)
	if err != nil {
		return fmt.Errorf("failed to build ingestion worker: %w", err)
	}
	defer worker.Release()

	report, err := worker.Run(c.Context, path)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Index: %s\n", report.Index)
	fmt.Fprintf(os.Stderr, "Rows: %d (failed: %d)\n", report.Rows, report.Failed)
	fmt.Fprintf(os.Stderr, "Promote with: ragpilot promote %s\n", report.Index)
	return nil
}

func promoteCommand(c *cli.Context) error {
	index := c.Args().First()
	if index == "" {
		return fmt.Errorf("index name is required")
	}

	pilot, err := newPilot(c)
	if err != nil {
		return fmt.Errorf("failed to build pilot: %w", err)
	}
	defer pilot.Close()

	if err := pilot.PromoteIndex(c.Context, index); err != nil {
		return fmt.Errorf("promotion failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Alias now serves %s\n", index)
	return nil
}

func resetCommand(c *cli.Context) error {
	sessionID := c.Args().First()
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	pilot, err := newPilot(c)
	if err != nil {
		return fmt.Errorf("failed to build pilot: %w", err)
	}
	defer pilot.Close()

	return pilot.ResetSession(c.Context, sessionID)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
