package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/thread"
	"github.com/deepnoodle-ai/thread/nodes"
	"github.com/deepnoodle-ai/thread/postgres"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// CLI configuration
type Config struct {
	WorkflowFile   string
	Inputs         map[string]any
	SessionID      string
	CheckpointsDir string
	PostgresDSN    string
	Timeout        time.Duration
	Verbose        bool
	JSON           bool
}

func main() {
	config := parseFlags()

	if config.WorkflowFile == "" {
		color.Red("Error: workflow file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.WorkflowFile); os.IsNotExist(err) {
		color.Red("Error: workflow file '%s' not found", config.WorkflowFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose)

	color.Blue("Loading workflow from: %s", config.WorkflowFile)
	definition, err := thread.LoadFile(config.WorkflowFile)
	if err != nil {
		log.Fatalf("Failed to load workflow: %v", err)
	}
	color.Cyan("Workflow: %s", definition.ID())

	repository, checkpointer, cleanup, err := setupStorage(config)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer cleanup()

	service, err := thread.NewExecutionService(thread.ExecutionServiceOptions{
		Repository:   repository,
		Factory:      nodes.NewFactory(),
		Checkpointer: checkpointer,
		Formatter:    thread.NewConsoleFormatter(),
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to create execution service: %v", err)
	}

	t, err := thread.NewThread(thread.ThreadOptions{
		SessionID:  config.SessionID,
		WorkflowID: definition.ID(),
		Title:      definition.ID(),
	})
	if err != nil {
		log.Fatalf("Failed to create thread: %v", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	color.Green("Starting execution (thread: %s)...\n", t.ID)
	startTime := time.Now()
	t, result, err := service.ExecuteSequentially(ctx, t, definition, config.Inputs)
	showResults(t, result, err, time.Since(startTime), config)
}

// setupStorage picks the repository and checkpointer backends from flags.
// PostgreSQL wins when a DSN is given; otherwise threads live in memory and
// checkpoints go to the filesystem when a directory is configured.
func setupStorage(config *Config) (thread.Repository, thread.Checkpointer, func(), error) {
	noop := func() {}
	if config.PostgresDSN != "" {
		db, err := postgres.Open(config.PostgresDSN)
		if err != nil {
			return nil, nil, noop, err
		}
		repository, err := postgres.NewRepository(db)
		if err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		checkpointer, err := postgres.NewCheckpointer(db)
		if err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		color.Blue("Storage: postgres")
		return repository, checkpointer, func() { db.Close() }, nil
	}
	var checkpointer thread.Checkpointer
	if config.CheckpointsDir != "" {
		fc, err := thread.NewFileCheckpointer(config.CheckpointsDir)
		if err != nil {
			return nil, nil, noop, err
		}
		color.Blue("Checkpoints: %s", config.CheckpointsDir)
		checkpointer = fc
	} else {
		checkpointer = thread.NewNullCheckpointer()
	}
	return thread.NewMemoryRepository(), checkpointer, noop, nil
}

func showResults(t thread.Thread, result *thread.ExecutionResult, err error, duration time.Duration, config *Config) {
	if config.JSON && result != nil {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to marshal result: %v", marshalErr)
		}
		fmt.Println(string(data))
	}

	fmt.Println()
	if err != nil {
		color.Red("Execution error: %v", err)
		os.Exit(1)
	}

	switch t.Status {
	case thread.StatusCompleted:
		color.Green("Execution completed in %v", duration.Round(time.Millisecond))
	case thread.StatusPaused:
		color.Yellow("Execution paused at step %q after %v", t.Execution.CurrentStep, duration.Round(time.Millisecond))
	case thread.StatusCancelled:
		color.Yellow("Execution cancelled: %s", t.Execution.ErrorMessage)
	case thread.StatusFailed:
		color.Red("Execution failed: %s", t.Execution.ErrorMessage)
		os.Exit(1)
	}

	if result != nil && !config.JSON && len(result.Variables) > 0 {
		color.Cyan("\nVariables:")
		for name, value := range result.Variables {
			color.White("  %s: %v", name, value)
		}
	}
}

func parseFlags() *Config {
	config := &Config{
		Inputs:    make(map[string]any),
		SessionID: "local",
	}

	flag.StringVar(&config.WorkflowFile, "file", "", "Path to the YAML workflow definition file (required)")
	flag.StringVar(&config.WorkflowFile, "f", "", "Path to the YAML workflow definition file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Input variable in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Input variable in format key=value (shorthand)")

	flag.StringVar(&config.SessionID, "session", "local", "Session ID for the thread")
	flag.StringVar(&config.CheckpointsDir, "checkpoints", "", "Directory to store checkpoints (optional)")
	flag.StringVar(&config.PostgresDSN, "postgres", "", "PostgreSQL DSN for thread and checkpoint storage (optional)")

	flag.DurationVar(&config.Timeout, "timeout", 0, "Execution timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Execution timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")

	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Thread CLI - Execute YAML-defined workflow threads

Usage: %s [options] -file <workflow.yaml>

Examples:
  # Execute a workflow
  %s -file example.yaml

  # Execute with inputs and file-backed checkpoints
  %s -file workflow.yaml -input name=Ada -checkpoints ./checkpoints

  # Execute against PostgreSQL storage
  %s -file workflow.yaml -postgres "postgres://localhost/threads?sslmode=disable"

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Supported Node Types:
  start       - Mark the workflow entry point, optionally seeding variables
  end         - Mark the workflow exit point, optionally surfacing a variable
  noop        - Do nothing
  transform   - Evaluate a Risor expression and store the result
  condition   - Evaluate a Risor predicate
  wait        - Wait for a specified duration
  interaction - Pause the thread to wait for external input

Input Format:
  Use -input key=value for each input variable.
  Values are parsed as JSON if possible, otherwise as strings.

`)
	}

	flag.Parse()

	for _, input := range inputFlags {
		parts := strings.SplitN(input, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", input)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]
		var parsedValue any
		if err := json.Unmarshal([]byte(value), &parsedValue); err != nil {
			parsedValue = value
		}
		config.Inputs[key] = parsedValue
	}

	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}
