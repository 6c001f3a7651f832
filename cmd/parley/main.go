package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parley-ai/parley/chat"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/llm"
	parleylogger "github.com/parley-ai/parley/logger"
	"github.com/parley-ai/parley/provider"
	"github.com/parley-ai/parley/resilience"
	"github.com/parley-ai/parley/tool"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		backend = flag.String("backend", "", "Provider backend to use (anthropic, openai, ollama). If not set, the first configured backend wins")
		model   = flag.String("model", "", "Model identifier. If not set, uses the backend's configured default")
		system  = flag.String("system", "", "System prompt for the conversation")
		logFile = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty  = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	// Validate that --logfile and --pretty are mutually exclusive
	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := parleylogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	logger.Info().Str("path", configPath).Msg("Loaded configuration")

	// ---------------------------
	// Resolve Provider
	// ---------------------------

	registry := provider.NewRegistry(cfg, logger)

	var (
		backendName string
		p           llm.Provider
	)
	if *backend != "" {
		backendName = *backend
		p, err = registry.Resolve(backendName)
	} else {
		backendName, p, err = registry.ResolveFirst()
	}
	if err != nil {
		return fmt.Errorf("failed to resolve provider: %w", err)
	}

	p = llm.WrapWithMiddleware(p, requestLogger(logger))

	modelName := *model
	if modelName == "" {
		modelName = registry.DefaultModel(backendName)
	}
	if modelName == "" {
		return fmt.Errorf("no model configured for backend %q, pass --model", backendName)
	}

	logger.Info().
		Str("backend", backendName).
		Str("model", modelName).
		Msg("parley starting")

	// ---------------------------
	// Build Engine + Tools
	// ---------------------------

	stack := resilience.NewStack(cfg.Resilience(), logger)
	defer stack.Stop()

	engine := chat.NewEngine(stack, logger)

	tools := tool.NewRegistry(logger)
	tools.Register(timeTool())
	tools.Register(calculatorTool())

	conv := chat.New(modelName).
		WithProvider(backendName, p).
		WithTools(tools.List()...).
		WithCallbacks(chat.Callbacks{
			OnToolCall: func(call llm.ToolCall) {
				fmt.Printf("\n[tool: %s]\n", call.Name)
			},
			OnChunk: func(frag llm.Fragment) error {
				fmt.Print(frag.Text)
				return nil
			},
		})
	if *system != "" {
		conv = conv.WithSystem(*system)
	}

	// ---------------------------
	// REPL
	// ---------------------------

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("parley (%s/%s) - type your message, /quit to exit\n", backendName, modelName)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}

		next, _, err := engine.AskStream(ctx, conv, input)
		fmt.Println()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("Request failed")
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		conv = next
	}

	logger.Info().Msg("parley shutdown")
	return scanner.Err()
}

// requestLogger logs each provider round trip with token usage when known.
func requestLogger(logger zerolog.Logger) llm.Middleware {
	log := logger.With().Str("component", "llm").Logger()
	return llm.MiddlewareFunc{
		BeforeRequestFunc: func(_ context.Context, req *llm.Request) (*llm.Request, error) {
			log.Debug().
				Str("model", req.Model).
				Int("messages", len(req.Messages)).
				Msg("Sending request")
			return req, nil
		},
		AfterResponseFunc: func(_ context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
			evt := log.Debug().Str("model", req.Model)
			if resp.Usage != nil && resp.Usage.TotalTokens != nil {
				evt = evt.Int64("total_tokens", *resp.Usage.TotalTokens)
			}
			evt.Msg("Received response")
			return resp, nil
		},
		OnErrorFunc: func(_ context.Context, req *llm.Request, err error) error {
			log.Warn().Err(err).Str("model", req.Model).Msg("Request failed")
			return err
		},
	}
}

func timeTool() tool.Tool {
	return tool.New(
		"current_time",
		"Returns the current date and time in RFC 3339 format.",
		map[string]llm.ParamSpec{},
		func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"time": time.Now().Format(time.RFC3339)}, nil
		},
	)
}

func calculatorTool() tool.Tool {
	return tool.New(
		"calculator",
		"Performs basic arithmetic on two numbers.",
		map[string]llm.ParamSpec{
			"operation": {Type: "string", Required: true, Description: "One of add, subtract, multiply, divide", Enum: []string{"add", "subtract", "multiply", "divide"}},
			"a":         {Type: "number", Required: true, Description: "Left operand"},
			"b":         {Type: "number", Required: true, Description: "Right operand"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			op, _ := args["operation"].(string)
			a, aok := args["a"].(float64)
			b, bok := args["b"].(float64)
			if !aok || !bok {
				return nil, fmt.Errorf("operands must be numbers")
			}
			var result float64
			switch op {
			case "add":
				result = a + b
			case "subtract":
				result = a - b
			case "multiply":
				result = a * b
			case "divide":
				if b == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				result = a / b
			default:
				return nil, fmt.Errorf("unknown operation %q", op)
			}
			return map[string]any{"result": result}, nil
		},
	)
}
