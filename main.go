package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/scribby/internal/llm"
	"github.com/hazyhaar/scribby/internal/mcp"
	"github.com/hazyhaar/scribby/internal/service"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "generate":
		err = cmdGenerate(ctx, os.Args[2:])
	case "complete":
		err = cmdComplete(ctx, os.Args[2:])
	case "status":
		err = cmdStatus(ctx, os.Args[2:])
	case "models":
		err = cmdModels(ctx, os.Args[2:])
	case "history":
		err = cmdHistory(ctx, os.Args[2:])
	case "mcp":
		err = cmdMCP(ctx, os.Args[2:])
	case "version":
		fmt.Printf("scribby %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "scribby: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`scribby - Bible study generator

Usage:
  scribby generate [--provider p] [--model m] [--config f] <reference>
  scribby generate [--book b --chapter n [--start v] [--end v]] [flags]
  scribby complete [--provider p] [--model m] [--config f] <prompt>
  scribby status   [--config f]
  scribby models   [--config f]
  scribby history  [--limit n] [--config f]
  scribby mcp      [--config f]
  scribby version

Commands:
  generate  Fetch a passage and generate a study for it
  complete  Run a free-form prompt through the provider chain
  status    Show configured providers and recent call stats
  models    List the models each configured provider offers
  history   List recently generated studies
  mcp       Serve the study tools over MCP on stdio
  version   Print version
  help      Show this help`)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	provider := fs.String("provider", "", "provider name or auto (overrides config)")
	model := fs.String("model", "", "model override for an explicit provider")
	book := fs.String("book", "", "book name")
	chapter := fs.Int("chapter", 0, "chapter number")
	start := fs.Int("start", 0, "first verse")
	end := fs.Int("end", 0, "last verse")
	textFile := fs.String("text-file", "", "read passage text from a file instead of the ESV API")
	fs.Parse(args)

	in := service.GenerateInput{
		Reference:  strings.Join(fs.Args(), " "),
		Book:       *book,
		Chapter:    *chapter,
		StartVerse: *start,
		EndVerse:   *end,
		Provider:   *provider,
		Model:      *model,
	}
	if *textFile != "" {
		b, err := os.ReadFile(*textFile)
		if err != nil {
			return fmt.Errorf("reading passage text: %w", err)
		}
		in.PassageText = string(b)
	}

	a, err := openApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Generate(ctx, in)
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	if res.Provider == llm.SourceError {
		return fmt.Errorf("study generation failed: %s", res.Study.Message())
	}
	return nil
}

func cmdComplete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	provider := fs.String("provider", "", "provider name or auto")
	model := fs.String("model", "", "model override")
	fs.Parse(args)

	a, err := openApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Complete(ctx, strings.Join(fs.Args(), " "), *provider, *model)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	since := fs.Duration("since", 24*time.Hour, "window for call statistics")
	fs.Parse(args)

	a, err := openApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.metrics.ProviderStats(time.Now().Add(-*since))
	if err != nil {
		a.logger.Warn("reading provider stats failed", "error", err)
	}

	status := a.router.Status()
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	return printJSON(map[string]any{
		"mode":      a.router.Mode(),
		"order":     a.router.Registry().Names(),
		"providers": status,
		"available": availableNames(names, status),
		"stats":     stats,
	})
}

func availableNames(names []string, status map[string]llm.ProviderStatus) []string {
	out := []string{}
	for _, n := range names {
		if status[n].Available {
			out = append(out, n)
		}
	}
	return out
}

func cmdModels(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	a, err := openApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	return printJSON(a.router.DiscoverModels(ctx))
}

func cmdHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	limit := fs.Int("limit", 20, "number of entries")
	fs.Parse(args)

	a, err := openApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.svc.RecentHistory(ctx, *limit)
	if err != nil {
		return err
	}
	return printJSON(entries)
}

func cmdMCP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	a, err := openApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewServer(a.svc, version, a.audit)
	a.logger.Info("serving MCP on stdio", "version", version)
	return server.ServeStdio(srv)
}
