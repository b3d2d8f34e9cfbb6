package main

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Value:   "redis://localhost:6379",
			EnvVars: []string{"RAGPILOT_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "model",
			EnvVars: []string{"RAGPILOT_MODEL"},
		},
		&cli.Float64Flag{
			Name:    "cache-distance",
			Value:   0.1,
			EnvVars: []string{"RAGPILOT_CACHE_DISTANCE"},
		},
		&cli.Float64Flag{
			Name:    "score-threshold",
			Value:   0.75,
			EnvVars: []string{"RAGPILOT_SCORE_THRESHOLD"},
		},
	}
}

func TestGlobalFlags(t *testing.T) {
	t.Run("redis-url has default and env var", func(t *testing.T) {
		flags := globalFlags()
		urlFlag, ok := flags[0].(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, "redis://localhost:6379", urlFlag.Value)
		assert.Equal(t, []string{"RAGPILOT_REDIS_URL"}, urlFlag.EnvVars)
	})

	t.Run("model has no default value", func(t *testing.T) {
		flags := globalFlags()
		modelFlag, ok := flags[1].(*cli.StringFlag)
		require.True(t, ok)
		assert.Empty(t, modelFlag.Value)
		assert.Equal(t, []string{"RAGPILOT_MODEL"}, modelFlag.EnvVars)
	})

	t.Run("score-threshold has default and env var", func(t *testing.T) {
		flags := globalFlags()
		thresholdFlag, ok := flags[3].(*cli.Float64Flag)
		require.True(t, ok)
		assert.Equal(t, 0.75, thresholdFlag.Value)
		assert.Equal(t, []string{"RAGPILOT_SCORE_THRESHOLD"}, thresholdFlag.EnvVars)
	})

	t.Run("env vars are read", func(t *testing.T) {
		t.Setenv("RAGPILOT_MODEL", "gpt-4o")

		var got string
		app := &cli.App{
			Name:  "ragpilot",
			Flags: globalFlags(),
			Action: func(c *cli.Context) error {
				got = c.String("model")
				return nil
			},
		}
		require.NoError(t, app.Run([]string{"ragpilot"}))
		assert.Equal(t, "gpt-4o", got)
	})
}

func TestCommandValidation(t *testing.T) {
	t.Run("ask requires a question", func(t *testing.T) {
		app := &cli.App{
			Name: "ragpilot",
			Commands: []*cli.Command{
				{Name: "ask", Action: askCommand},
			},
		}
		err := app.Run([]string{"ragpilot", "ask"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "question")
	})

	t.Run("ingest requires a file path", func(t *testing.T) {
		app := &cli.App{
			Name: "ragpilot",
			Commands: []*cli.Command{
				{Name: "ingest", Action: ingestCommand},
			},
		}
		err := app.Run([]string{"ragpilot", "ingest"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file path")
	})

	t.Run("promote requires an index name", func(t *testing.T) {
		app := &cli.App{
			Name: "ragpilot",
			Commands: []*cli.Command{
				{Name: "promote", Action: promoteCommand},
			},
		}
		err := app.Run([]string{"ragpilot", "promote"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index")
	})

	t.Run("reset requires a session id", func(t *testing.T) {
		app := &cli.App{
			Name: "ragpilot",
			Commands: []*cli.Command{
				{Name: "reset", Action: resetCommand},
			},
		}
		err := app.Run([]string{"ragpilot", "reset"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session")
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		testCases := []string{
			"DEBUG",
			"Info",
			"WaRn",
			"ERROR",
		}

		for _, tc := range testCases {
			t.Run(tc, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "log-level",
					Value: "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				return nil
			},
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
		assert.Contains(t, err.Error(), "invalid")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				level := c.String("log-level")
				assert.Equal(t, "debug", level)
				return nil
			},
		}

		err := app.Run([]string{"test", "-l", "debug"})
		require.NoError(t, err)
	})
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
