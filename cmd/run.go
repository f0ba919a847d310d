package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/opencoder/agentruntime/internal/agent"
	"github.com/opencoder/agentruntime/internal/config"
	"github.com/opencoder/agentruntime/internal/safety"
	"github.com/opencoder/agentruntime/internal/sessions"
	"github.com/opencoder/agentruntime/internal/store/file"
	"github.com/opencoder/agentruntime/internal/providers"
	"github.com/opencoder/agentruntime/internal/tools"
	"github.com/opencoder/agentruntime/internal/tracing"
)

var (
	runAgentName string
	runMessage   string
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive agent session in this terminal",
		Long:  "Drives the agent loop from the CLI: reads a message, streams the model's response, executes tools, and prompts for approval on risky commands.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runInteractive(); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&runAgentName, "agent", "", "agent name from the config's agents.list (default: the configured default agent)")
	cmd.Flags().StringVarP(&runMessage, "message", "m", "", "send a single message non-interactively and exit")
	return cmd
}

// resolveProvider builds a providers.Provider for name using cfg's credentials.
func resolveProvider(cfg *config.Config, name string) (providers.Provider, error) {
	switch name {
	case "", "anthropic":
		if cfg.Providers.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for provider %q", name)
		}
		var opts []providers.AnthropicOption
		if cfg.Providers.Anthropic.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.APIBase))
		}
		return providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, opts...), nil
	case "openai":
		return providers.NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, "gpt-4o"), nil
	case "openrouter":
		base := cfg.Providers.OpenRouter.APIBase
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		return providers.NewOpenAIProvider("openrouter", cfg.Providers.OpenRouter.APIKey, base, "anthropic/claude-sonnet-4.5"), nil
	case "groq":
		base := cfg.Providers.Groq.APIBase
		if base == "" {
			base = "https://api.groq.com/openai/v1"
		}
		return providers.NewOpenAIProvider("groq", cfg.Providers.Groq.APIKey, base, "llama-3.3-70b-versatile"), nil
	case "deepseek":
		base := cfg.Providers.DeepSeek.APIBase
		if base == "" {
			base = "https://api.deepseek.com/v1"
		}
		return providers.NewOpenAIProvider("deepseek", cfg.Providers.DeepSeek.APIKey, base, "deepseek-chat"), nil
	case "dashscope":
		return providers.NewDashScopeProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, "qwen-max"), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// resolveAgentSpec picks the named agent's config, or the configured default.
func resolveAgentSpec(cfg *config.Config, name string) (string, config.AgentSpec) {
	if name != "" {
		if spec, ok := cfg.Agents.List[name]; ok {
			return name, spec
		}
	}
	for id, spec := range cfg.Agents.List {
		if spec.Default {
			return id, spec
		}
	}
	return "default", config.AgentSpec{}
}

func buildToolRegistry(cfg *config.Config, workspace string, approvalMgr *tools.ExecApprovalManager, agentID string, providerRegistry *providers.Registry) *tools.Registry {
	reg := tools.NewRegistry()

	restrict := true
	reg.Register(tools.NewReadFileTool(workspace, restrict))

	execTool := tools.NewExecTool(workspace, restrict)
	execTool.SetApprovalManager(approvalMgr, agentID)
	reg.Register(execTool)

	reg.Register(tools.NewWebFetchTool(tools.WebFetchConfig{MaxChars: 8000, CacheTTL: 10 * time.Minute}))

	reg.Register(tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveAPIKey:     cfg.Tools.Web.Brave.APIKey,
		BraveEnabled:    cfg.Tools.Web.Brave.Enabled,
		BraveMaxResults: cfg.Tools.Web.Brave.MaxResults,
		DDGEnabled:      cfg.Tools.Web.DuckDuckGo.Enabled,
		DDGMaxResults:   cfg.Tools.Web.DuckDuckGo.MaxResults,
		CacheTTL:        10 * time.Minute,
	}))

	reg.Register(tools.NewSessionsListTool())
	reg.Register(tools.NewSessionStatusTool())
	reg.Register(tools.NewSessionsHistoryTool())

	reg.Register(tools.NewReadImageTool(providerRegistry))
	reg.Register(tools.NewCreateImageTool(providerRegistry))

	if cfg.Tools.Browser.Enabled {
		reg.Register(tools.NewBrowserTool(tools.BrowserConfig{Headless: cfg.Tools.Browser.Headless}))
	}

	return reg
}

// cliApprovalPrompt renders spec.md §6's permission-prompt protocol (Allow
// once / Allow for session / Deny) as an interactive terminal form.
func cliApprovalPrompt(command string) safety.ApprovalDecision {
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Approve command?\n\n  %s", command)).
				Options(
					huh.NewOption("Allow once", "once"),
					huh.NewOption("Allow for this session", "session"),
					huh.NewOption("Deny", "deny"),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return safety.ApprovalDeny
	}
	switch choice {
	case "session":
		return safety.ApprovalAllowSession
	case "once":
		return safety.ApprovalAllowOnce
	default:
		return safety.ApprovalDeny
	}
}

func runInteractive() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	agentID, spec := resolveAgentSpec(cfg, runAgentName)

	providerName := spec.Provider
	if providerName == "" {
		providerName = cfg.Agents.Defaults.Provider
	}
	provider, err := resolveProvider(cfg, providerName)
	if err != nil {
		return err
	}

	model := spec.Model
	if model == "" {
		model = cfg.Agents.Defaults.Model
	}
	if model == "" {
		model = provider.DefaultModel()
	}

	workspace := spec.Workspace
	if workspace == "" {
		workspace = cfg.Agents.Defaults.Workspace
	}
	if workspace == "" {
		workspace = "."
	}
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}

	if err := tracing.Init(context.Background(), cfg.Telemetry); err != nil {
		fmt.Fprintln(os.Stderr, "telemetry disabled:", err)
	}
	defer tracing.Shutdown(context.Background())

	policy := safety.PolicyFromConfig(
		cfg.Safety.ApprovalThreshold,
		cfg.Safety.DenyThreshold,
		cfg.Safety.AllowNetwork,
		cfg.Safety.AllowPipeRedirect,
		cfg.Safety.CustomDenyPatterns,
	)
	approvalMgr := safety.NewApprovalManager(policy)
	execApproval := tools.NewExecApprovalManager(approvalMgr)
	execApproval.Prompt = cliApprovalPrompt

	providerRegistry := providers.NewRegistry()
	providerRegistry.Register(provider.Name(), provider)

	toolRegistry := buildToolRegistry(cfg, workspace, execApproval, agentID, providerRegistry)
	policyEngine := tools.NewPolicyEngine(&cfg.Tools)

	storageDir := cfg.Sessions.Storage
	if storageDir == "" {
		storageDir = "~/.goclaw/sessions"
	}
	if strings.HasPrefix(storageDir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			storageDir = filepath.Join(home, storageDir[1:])
		}
	}
	sessionMgr := sessions.NewManager(storageDir)
	sessionStore := file.NewFileSessionStore(sessionMgr)

	loop := agent.NewLoop(agent.LoopConfig{
		ID:                 agentID,
		Provider:           provider,
		Model:              model,
		MaxIterations:      cfg.Agents.Defaults.MaxToolIterations,
		Workspace:          workspace,
		Sessions:           sessionStore,
		Tools:              toolRegistry,
		ToolPolicy:         policyEngine,
		AgentToolPolicy:    spec.Tools,
		OnEvent:            printEvent,
		InjectionAction:    "warn",
	})

	sessionKey := sessions.SessionKey(agentID, "cli")

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	defer cancel()

	if runMessage != "" {
		return sendOneMessage(ctx, loop, sessionKey, runMessage)
	}

	fmt.Printf("goclaw run — agent %q, model %s, workspace %s\n", agentID, model, workspace)
	fmt.Println("Type your message and press Enter. Ctrl-C to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if err := sendOneMessage(ctx, loop, sessionKey, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func sendOneMessage(ctx context.Context, loop *agent.Loop, sessionKey, message string) error {
	result, err := loop.Run(ctx, agent.RunRequest{
		SessionKey:   sessionKey,
		Message:      message,
		Stream:       true,
		HistoryLimit: 50,
	})
	if err != nil {
		return err
	}
	if result.Content != "" {
		fmt.Println()
		fmt.Println(result.Content)
	}
	return nil
}

func printEvent(e agent.AgentEvent) {
	switch e.Type {
	case "text":
		if payload, ok := e.Payload.(map[string]string); ok {
			fmt.Print(payload["content"])
		}
	case "tool.start":
		if payload, ok := e.Payload.(map[string]interface{}); ok {
			fmt.Printf("\n  [tool] %v\n", payload["name"])
		}
	case "error":
		if payload, ok := e.Payload.(map[string]string); ok {
			fmt.Fprintf(os.Stderr, "\n  [error] %s\n", payload["error"])
		}
	}
}
