package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/budget"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/config"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/core"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/store"
	"github.com/WanderingAstronomer/azentiq-memory-manager-andrew-fork/types"
)

const cliTimeout = 10 * time.Second

// app bundles the store and memory manager for one CLI invocation.
type app struct {
	cfg     *config.Config
	manager *core.MemoryManager
	logger  *zap.Logger
}

func newApp(configPath string) *app {
	cfg := mustLoadConfig(configPath)
	logger := initLogger(cfg.Log)

	st := openStore(cfg, logger)
	rules := budget.NewRulesManager(cfg, logger)
	b := budget.NewManager(budget.ManagerConfig{
		TotalBudget:    cfg.Application.GlobalTokenLimit,
		ReservedTokens: cfg.Application.ReservedTokens,
		Estimator:      budget.NewEstimatorFromConfig(cfg.Estimator),
		Rules:          rules,
	}, logger)

	manager := core.NewMemoryManager(st, b, logger)
	manager.SetContext(cfg.Application.DefaultComponent, "")

	return &app{cfg: cfg, manager: manager, logger: logger}
}

func (a *app) close() {
	a.manager.Close()
	a.logger.Sync()
}

func openStore(cfg *config.Config, logger *zap.Logger) store.Store {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis address not configured, using in-memory store")
		return store.NewInMemoryStore(cfg.Redis.ShortTermTTL, time.Now, logger)
	}

	st, err := store.NewRedisStore(cfg.Redis, cfg.Application.Framework, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	return st
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("Failed to render output: %v", err)
	}
	fmt.Println(string(buf))
}

// parseQuery turns "k=v,k2=v2" into a metadata query map.
func parseQuery(raw string) (map[string]any, error) {
	query := make(map[string]any)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid query pair %q, expected key=value", pair)
		}
		query[key] = value
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query is empty")
	}
	return query, nil
}

func parseTierFlag(raw string) types.Tier {
	if raw == "" {
		return ""
	}
	tier, err := types.ParseTier(raw)
	if err != nil {
		fatalf("%v", err)
	}
	return tier
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	content := fs.String("content", "", "Memory content")
	tierName := fs.String("tier", "working", "Memory tier (short_term, working, long_term)")
	importance := fs.Float64("importance", 0.5, "Importance in [0,1]")
	session := fs.String("session", "", "Session ID")
	metaRaw := fs.String("metadata", "", "Metadata as key=value pairs, comma separated")
	fs.Parse(args)

	if *content == "" {
		fatalf("--content is required")
	}
	var metadata map[string]any
	if *metaRaw != "" {
		parsed, err := parseQuery(*metaRaw)
		if err != nil {
			fatalf("%v", err)
		}
		metadata = parsed
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	id, err := a.manager.AddMemory(ctx, *content, metadata, parseTierFlag(*tierName), *importance, *session)
	if err != nil {
		fatalf("Failed to add memory: %v", err)
	}
	printJSON(map[string]string{"memory_id": id})
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	tierName := fs.String("tier", "", "Memory tier, empty searches all tiers")
	session := fs.String("session", "", "Session ID")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatalf("Usage: azentiq-memory get [options] <memory-id>")
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	memory, err := a.manager.GetMemory(ctx, fs.Arg(0), parseTierFlag(*tierName), *session)
	if err != nil {
		fatalf("Failed to get memory: %v", err)
	}
	printJSON(memory)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	tierName := fs.String("tier", "", "Memory tier, empty lists all tiers")
	session := fs.String("session", "", "Session ID")
	limit := fs.Int("limit", 50, "Maximum memories to return")
	offset := fs.Int("offset", 0, "Pagination offset")
	fs.Parse(args)

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	memories, err := a.manager.ListMemories(ctx, parseTierFlag(*tierName), *session, *limit, *offset)
	if err != nil {
		fatalf("Failed to list memories: %v", err)
	}
	printJSON(memories)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	queryRaw := fs.String("query", "", "Metadata query as key=value pairs, comma separated")
	tierName := fs.String("tier", "", "Memory tier, empty searches all tiers")
	limit := fs.Int("limit", 50, "Maximum memories to return")
	fs.Parse(args)

	query, err := parseQuery(*queryRaw)
	if err != nil {
		fatalf("--query: %v", err)
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	memories, err := a.manager.SearchByMetadata(ctx, query, *limit, parseTierFlag(*tierName))
	if err != nil {
		fatalf("Failed to search memories: %v", err)
	}
	printJSON(memories)
}

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	content := fs.String("content", "", "Replacement content")
	tierName := fs.String("tier", "working", "Memory tier")
	importance := fs.Float64("importance", 0.5, "Importance in [0,1]")
	metaRaw := fs.String("metadata", "", "Metadata as key=value pairs, comma separated")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatalf("Usage: azentiq-memory update [options] <memory-id>")
	}
	if *content == "" {
		fatalf("--content is required")
	}
	var metadata map[string]any
	if *metaRaw != "" {
		parsed, err := parseQuery(*metaRaw)
		if err != nil {
			fatalf("%v", err)
		}
		metadata = parsed
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	memory := &types.Memory{
		ID:         fs.Arg(0),
		Content:    *content,
		Metadata:   metadata,
		Tier:       parseTierFlag(*tierName),
		Importance: *importance,
	}
	if err := a.manager.UpdateMemory(ctx, memory); err != nil {
		fatalf("Failed to update memory: %v", err)
	}
	printJSON(memory)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	tierName := fs.String("tier", "", "Memory tier, empty deletes from all tiers")
	session := fs.String("session", "", "Session ID")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatalf("Usage: azentiq-memory delete [options] <memory-id>")
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	if err := a.manager.DeleteMemory(ctx, fs.Arg(0), parseTierFlag(*tierName), *session); err != nil {
		fatalf("Failed to delete memory: %v", err)
	}
	printJSON(map[string]string{"deleted": fs.Arg(0)})
}

func runTurn(args []string) {
	fs := flag.NewFlagSet("turn", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	session := fs.String("session", "", "Session ID")
	content := fs.String("content", "", "Turn content")
	role := fs.String("role", "user", "Turn role (user, assistant)")
	importance := fs.Float64("importance", 0.5, "Importance in [0,1]")
	fs.Parse(args)

	if *session == "" || *content == "" {
		fatalf("--session and --content are required")
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	id, err := a.manager.AddConversationTurn(ctx, *session, *content, *role, *importance)
	if err != nil {
		fatalf("Failed to add turn: %v", err)
	}
	printJSON(map[string]string{"memory_id": id})
}

func runPrompt(args []string) {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	session := fs.String("session", "", "Session ID")
	query := fs.String("query", "", "User query")
	system := fs.String("system", "", "System message")
	maxTokens := fs.Int("max-tokens", 0, "Token budget, 0 uses the configured limit")
	fs.Parse(args)

	if *session == "" || *query == "" {
		fatalf("--session and --query are required")
	}

	a := newApp(*configPath)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	prompt, usage, err := a.manager.GeneratePrompt(ctx, *session, *system, *query, *maxTokens)
	if err != nil {
		fatalf("Failed to generate prompt: %v", err)
	}
	printJSON(map[string]any{"prompt": prompt, "usage": usage})
}
