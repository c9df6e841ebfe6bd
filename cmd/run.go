package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/coreclaw/agentcore/internal/agent"
	"github.com/coreclaw/agentcore/internal/bootstrap"
	"github.com/coreclaw/agentcore/internal/bus"
	"github.com/coreclaw/agentcore/internal/channels"
	"github.com/coreclaw/agentcore/internal/channels/discord"
	"github.com/coreclaw/agentcore/internal/config"
	"github.com/coreclaw/agentcore/internal/consolidator"
	"github.com/coreclaw/agentcore/internal/contextbuilder"
	"github.com/coreclaw/agentcore/internal/memory"
	"github.com/coreclaw/agentcore/internal/providers"
	"github.com/coreclaw/agentcore/internal/sessions"
	"github.com/coreclaw/agentcore/internal/store/pg"
	"github.com/coreclaw/agentcore/internal/tools"
)

type chatOptions struct {
	message string
}

func chatCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent (interactive REPL, or one-shot with -m)",
		Run: func(cmd *cobra.Command, args []string) {
			runChat(chatOptions{message: message})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive REPL)")
	return cmd
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runChat(opts chatOptions) {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.HasAnyProvider() {
		fmt.Fprintln(os.Stderr, "no provider is configured; run \"agentcore onboard\" first or set a provider API key env var")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer shutCancel()
		_ = shutdownTelemetry(shutCtx)
	}()

	loop, msgBus, teardown, err := buildLoop(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing agent: %v\n", err)
		os.Exit(1)
	}
	defer teardown()

	watchConfig(ctx, cfgPath, cfg, loop)

	if opts.message != "" {
		runOneShot(ctx, loop, opts.message)
		return
	}
	runDiscordIfConfigured(ctx, cfg, msgBus)
	runREPL(ctx, loop)
}

func buildLoop(ctx context.Context, cfg *config.Config) (*agent.Loop, *bus.MessageBus, func(), error) {
	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create workspace: %w", err)
	}
	if _, err := bootstrap.EnsureWorkspaceFiles(workspace); err != nil {
		slog.Warn("could not seed workspace bootstrap files", "error", err)
	}

	sessionsDir := config.ExpandHome(cfg.Sessions.Storage)
	sessMgr, err := sessions.NewManager(sessionsDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open session store: %w", err)
	}

	var archive *pg.Archive
	if cfg.Sessions.Backend == "postgres" {
		archive, err = pg.Open(ctx, cfg.Sessions.PostgresDSN)
		if err != nil {
			slog.Warn("postgres session archive unavailable, continuing with file store only", "error", err)
		} else {
			sessMgr.SetArchiveHook(archive.Mirror)
		}
	}

	memDir := filepath.Join(workspace, "memory")
	memStore, err := memory.NewStore(memDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open memory store: %w", err)
	}

	providerRegistry, defaultProvider, err := buildProviderRegistry(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	builder := contextbuilder.New(contextbuilder.Config{
		Workspace: workspace,
		AgentName: cfg.ResolveDisplayName(config.DefaultAgentID),
	}, memStore, defaultProvider)

	cons := consolidator.New(defaultProvider, cfg.Agents.Defaults.Model, memStore, sessMgr)

	msgBus := bus.NewMessageBus(256)

	registry, cronTool := buildToolRegistry(cfg, workspace, msgBus, providerRegistry, defaultProvider, sessMgr)

	loopCfg := agent.Config{
		MaxIterations: cfg.Agents.Defaults.MaxToolIterations,
		Model:         cfg.Agents.Defaults.Model,
		Temperature:   cfg.Agents.Defaults.Temperature,
		MaxTokens:     cfg.Agents.Defaults.MaxTokens,
	}
	loop := agent.NewLoop(tracedProvider(defaultProvider), sessMgr, registry, builder, cons, msgBus, loopCfg)

	policy := tools.Policy{Profile: cfg.Tools.Profile, Allow: cfg.Tools.Allow, Deny: cfg.Tools.Deny, AlsoAllow: cfg.Tools.AlsoAllow}
	loop.SetPolicy(tools.NewPolicyEngine(policy))
	loop.SetRateLimiter(channels.NewRateLimiter(cfg.Gateway.RateLimitRPM))

	cronCtx, cronCancel := context.WithCancel(ctx)
	go cronTool.Run(cronCtx, time.Minute)

	go loop.Run(ctx)

	teardown := func() {
		cronCancel()
		if archive != nil {
			archive.Close()
		}
	}
	return loop, msgBus, teardown, nil
}

// buildToolRegistry registers every tool named in SPEC_FULL §4.4/§12. The
// same construction is reused, minus deny-listed tools, to build a fresh
// registry for each spawned subagent (spec §4.9).
func buildToolRegistry(
	cfg *config.Config,
	workspace string,
	msgBus *bus.MessageBus,
	providerRegistry *providers.Registry,
	defaultProvider providers.Provider,
	sessMgr *sessions.Manager,
) (*tools.Registry, *tools.CronTool) {
	registry := tools.NewRegistry()
	restrict := cfg.Agents.Defaults.RestrictToWorkspace

	registry.Register(traced(tools.NewReadFileTool(workspace, restrict)))
	registry.Register(traced(tools.NewWriteFileTool(workspace, restrict)))
	registry.Register(traced(tools.NewListFilesTool(workspace, restrict)))
	registry.Register(traced(tools.NewExecTool(workspace, restrict)))

	registry.Register(traced(tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveAPIKey:     cfg.Tools.Web.Brave.APIKey,
		BraveEnabled:    cfg.Tools.Web.Brave.Enabled,
		BraveMaxResults: cfg.Tools.Web.Brave.MaxResults,
		DDGEnabled:      cfg.Tools.Web.DuckDuckGo.Enabled,
		DDGMaxResults:   cfg.Tools.Web.DuckDuckGo.MaxResults,
	})))
	registry.Register(traced(tools.NewWebFetchTool(tools.WebFetchConfig{})))

	registry.Register(traced(tools.NewCreateImageTool(providerRegistry)))
	registry.Register(traced(tools.NewReadImageTool(providerRegistry)))

	registry.Register(traced(tools.NewMessageTool(msgBus)))
	registry.Register(traced(tools.NewSessionsListTool(sessMgr)))
	registry.Register(traced(tools.NewSessionStatusTool(sessMgr)))
	registry.Register(traced(tools.NewSessionsHistoryTool(sessMgr)))
	registry.Register(traced(tools.NewSessionsSendTool(sessMgr, msgBus)))

	if cfg.Tools.Browser.Enabled {
		registry.Register(traced(tools.NewBrowserTool(tools.BrowserToolConfig{
			Enabled:   true,
			Headless:  cfg.Tools.Browser.Headless,
			Port:      cfg.Tools.Browser.Port,
			Profile:   cfg.Tools.Browser.Profile,
			Workspace: workspace,
			MaxNodes:  cfg.Tools.Browser.MaxNodes,
		})))
	}

	cronTool := tools.NewCronTool(msgBus)
	registry.Register(traced(cronTool))

	subagentCfg := tools.DefaultSubagentConfig()
	if sc := cfg.Agents.Defaults.Subagents; sc != nil {
		if sc.MaxConcurrent > 0 {
			subagentCfg.MaxConcurrent = sc.MaxConcurrent
		}
		if sc.MaxSpawnDepth > 0 {
			subagentCfg.MaxSpawnDepth = sc.MaxSpawnDepth
		}
		subagentCfg.Model = sc.Model
	}
	createTools := func() *tools.Registry {
		sub, _ := buildToolRegistry(cfg, workspace, msgBus, providerRegistry, defaultProvider, sessMgr)
		return sub
	}
	subagentMgr := tools.NewSubagentManager(defaultProvider, cfg.Agents.Defaults.Model, msgBus, createTools, subagentCfg)
	registry.Register(traced(tools.NewSpawnTool(subagentMgr)))

	return registry, cronTool
}

func runOneShot(ctx context.Context, loop *agent.Loop, message string) {
	reply, _, err := loop.ProcessDirect(ctx, message, sessions.BuildSessionKey("cli", "local"), "cli", "local", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(wrapForTerminal(reply))
}

func runREPL(ctx context.Context, loop *agent.Loop) {
	fmt.Println("agentcore — type a message, or /new to reset this session, Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		onProgress := func(text string) {
			if text != "" {
				fmt.Println(wrapForTerminal("… " + text))
			}
		}
		reply, toolsUsed, err := loop.ProcessDirect(ctx, line, sessions.BuildSessionKey("cli", "local"), "cli", "local", onProgress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if len(toolsUsed) > 0 {
			fmt.Printf("[used: %s]\n", strings.Join(toolsUsed, ", "))
		}
		fmt.Println(wrapForTerminal(reply))
	}
}

// wrapForTerminal wraps reply text at a fixed width of 100 columns,
// accounting for wide (CJK) runes rather than assuming one column per rune.
// Words are re-joined with single spaces, so existing line breaks and runs
// of whitespace are not preserved.
func wrapForTerminal(s string) string {
	const width = 100
	var out strings.Builder
	lineWidth := 0
	for _, word := range strings.Fields(s) {
		w := runewidth.StringWidth(word)
		if lineWidth > 0 && lineWidth+1+w > width {
			out.WriteByte('\n')
			lineWidth = 0
		} else if lineWidth > 0 {
			out.WriteByte(' ')
			lineWidth++
		}
		out.WriteString(word)
		lineWidth += w
	}
	return out.String()
}

func runDiscordIfConfigured(ctx context.Context, cfg *config.Config, msgBus *bus.MessageBus) {
	if !cfg.Channels.Discord.Enabled || cfg.Channels.Discord.Token == "" {
		return
	}
	// Discord publishes onto the same msgBus the Loop is already consuming
	// from; buildLoop's loop.Run(ctx) picks up its inbound traffic for free.
	// The channel manager owns outbound fan-out back to it.
	discordCh, err := discord.New(cfg.Channels.Discord, msgBus)
	if err != nil {
		slog.Error("discord channel disabled: could not initialize", "error", err)
		return
	}
	mgr := channels.NewManager(msgBus)
	mgr.RegisterChannel("discord", discordCh)
	if err := mgr.StartAll(ctx); err != nil {
		slog.Error("discord channel failed to start", "error", err)
	}
}
