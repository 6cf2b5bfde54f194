package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/codefionn/flowpilot/internal/config"
	"github.com/codefionn/flowpilot/internal/docgen"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/logger"
	"github.com/codefionn/flowpilot/internal/orchestrator"
	"github.com/codefionn/flowpilot/internal/reset"
	"github.com/codefionn/flowpilot/internal/snapshot"
	"github.com/codefionn/flowpilot/internal/speech"
	"github.com/codefionn/flowpilot/internal/stage"
	"github.com/codefionn/flowpilot/internal/tools"
)

var errQuitRequested = errors.New("quit requested")

func main() {
	if err := run(); err != nil && !errors.Is(err, errQuitRequested) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", config.GetConfigPath(), "path to the configuration file")
	restoreKey := flag.String("restore", "", "session id to restore from a snapshot")
	flag.Parse()

	// Optional; a missing .env just means the environment is already set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	manager := llm.NewManager(cfg)
	client, err := manager.ChatClient()
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}
	docProvider, err := manager.DocumentProvider()
	if err != nil {
		return fmt.Errorf("failed to create document provider: %w", err)
	}

	kv, err := openSnapshotBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to open snapshot backend: %w", err)
	}
	store := snapshot.NewStore(kv)
	defer store.Close()

	orch := orchestrator.New(cfg, client, docProvider, tools.DefaultRegistry(), store, consoleEvents())

	if *restoreKey != "" {
		restored, restoreErr := orch.RestoreSnapshot(context.Background(), *restoreKey)
		if restoreErr != nil {
			return fmt.Errorf("failed to restore snapshot: %w", restoreErr)
		}
		if restored {
			fmt.Println("Restored previous session.")
		} else {
			fmt.Println("No usable snapshot found, starting fresh.")
		}
	}

	if cfg.FlagPath != "" {
		watcher, watchErr := reset.New(cfg.FlagPath, func() {
			if saveErr := orch.SaveSnapshot(context.Background()); saveErr != nil {
				logger.Error("snapshot on reset failed: %v", saveErr)
				return
			}
			fmt.Printf("\nSession snapshotted as %s. Restart with -restore to continue.\n> ", orch.Session().ID())
		})
		if watchErr != nil {
			logger.Warn("reset watcher unavailable: %v", watchErr)
		} else {
			defer watcher.Close()
		}
	}

	if cfg.SpeechURL != "" {
		stream, dialErr := speech.Dial(context.Background(), cfg.SpeechURL, func(text string) {
			fmt.Printf("\n[voice] %s\n", text)
			if submitErr := orch.Submit(context.Background(), text); submitErr != nil {
				printOperationError(submitErr)
			}
			fmt.Print("> ")
		})
		if dialErr != nil {
			logger.Warn("speech stream unavailable: %v", dialErr)
		} else {
			go stream.ReadPump()
			defer stream.Close()
		}
	}

	return repl(orch)
}

func openSnapshotBackend(cfg *config.Config) (snapshot.KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SnapshotBackend)) {
	case "sqlite":
		path := cfg.SnapshotPath
		if path == "" {
			path = "flowpilot-snapshots.db"
		}
		return snapshot.NewSQLiteKV(path)
	case "redis":
		return snapshot.NewRedisKV(cfg.RedisAddr)
	default:
		return snapshot.NewMemoryKV(), nil
	}
}

func consoleEvents() *orchestrator.Events {
	return &orchestrator.Events{
		AssistantMessage: func(text string) {
			fmt.Printf("\n%s\n", text)
		},
		DiagramReady: func(diagramText string) {
			fmt.Printf("\n```mermaid\n%s\n```\n", diagramText)
		},
		ArtifactReady: func(artifact *docgen.Artifact) {
			fmt.Printf("\nDocument %s (%s) generated.\n", artifact.Name, artifact.ID)
		},
		RetryAvailable: func(phase stage.Phase, message string) {
			fmt.Printf("\n%s (type /retry)\n", message)
		},
		Progress: func(message string) {
			fmt.Printf("%s\n", message)
		},
	}
}

func repl(orch *orchestrator.Orchestrator) error {
	fmt.Println("FlowPilot - describe the process you want to automate.")
	fmt.Println("Commands: /diagram /build /retry /changes <text> /save /quit")

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := dispatch(ctx, orch, line); err != nil {
			if errors.Is(err, errQuitRequested) {
				return err
			}
			printOperationError(err)
		}
	}
}

func dispatch(ctx context.Context, orch *orchestrator.Orchestrator, line string) error {
	switch {
	case line == "/quit" || line == "/exit":
		return errQuitRequested
	case line == "/diagram":
		return orch.RequestDiagram(ctx)
	case line == "/build":
		return orch.Build(ctx)
	case line == "/retry":
		return orch.RetryLast(ctx)
	case line == "/save":
		if err := orch.SaveSnapshot(ctx); err != nil {
			return err
		}
		fmt.Printf("Snapshot saved as %s.\n", orch.Session().ID())
		return nil
	case strings.HasPrefix(line, "/changes "):
		return orch.RequestChanges(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/changes ")))
	case strings.HasPrefix(line, "/"):
		fmt.Printf("Unknown command %q.\n", line)
		return nil
	default:
		return orch.Submit(ctx, line)
	}
}

func printOperationError(err error) {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		fmt.Println("Hold on, the previous request is still running.")
	case errors.Is(err, orchestrator.ErrNothingToRetry):
		fmt.Println("Nothing failed; there is nothing to retry.")
	default:
		fmt.Printf("Request failed: %v\n", err)
	}
}
