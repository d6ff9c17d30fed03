// Command xactions-a2a runs the XActions A2A runtime and its operator
// CLI.
//
// Usage:
//
//	xactions-a2a start
//	xactions-a2a status
//	xactions-a2a skills -q sentiment
//	xactions-a2a discover https://agent.example
//	xactions-a2a task "compare @alice and @bob"
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/auth"
	"github.com/xactions/xactions-a2a/pkg/bridge"
	"github.com/xactions/xactions-a2a/pkg/card"
	"github.com/xactions/xactions-a2a/pkg/config"
	"github.com/xactions/xactions-a2a/pkg/discovery"
	"github.com/xactions/xactions-a2a/pkg/logger"
	"github.com/xactions/xactions-a2a/pkg/orchestrator"
	"github.com/xactions/xactions-a2a/pkg/push"
	"github.com/xactions/xactions-a2a/pkg/ratelimit"
	"github.com/xactions/xactions-a2a/pkg/server"
	"github.com/xactions/xactions-a2a/pkg/skills"
	"github.com/xactions/xactions-a2a/pkg/storage"
	"github.com/xactions/xactions-a2a/pkg/stream"
	"github.com/xactions/xactions-a2a/pkg/task"
)

// CLI defines the command-line interface.
type CLI struct {
	Start    StartCmd    `cmd:"" aliases:"serve" help:"Start the A2A server."`
	Status   StatusCmd   `cmd:"" help:"Show server health."`
	Skills   SkillsCmd   `cmd:"" help:"List skills."`
	Agents   AgentsCmd   `cmd:"" help:"List registered remote agents."`
	Discover DiscoverCmd `cmd:"" help:"Register a remote agent by URL."`
	Task     TaskCmd     `cmd:"" help:"Run a task and stream its progress."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Server    string `help:"Server base URL for client commands." default:"http://localhost:3100"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("xactions-a2a %s\n", version)
	return nil
}

// StartCmd starts the A2A server.
type StartCmd struct {
	Port        int  `help:"Port to listen on (overrides A2A_PORT)."`
	RequireAuth bool `name:"require-auth" help:"Reject unauthenticated requests on mutating routes."`
}

func (c *StartCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Port = c.Port
		if os.Getenv(config.EnvBaseURL) == "" {
			cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
		}
	}

	srv, err := buildServer(ctx, cfg, c.RequireAuth)
	if err != nil {
		return err
	}

	fmt.Printf("XActions A2A agent ready\n")
	fmt.Printf("  Agent Card: %s/.well-known/agent.json\n", cfg.BaseURL)
	fmt.Printf("  Health:     %s/a2a/health\n", cfg.BaseURL)
	fmt.Printf("  Tasks:      %s/a2a/tasks\n", cfg.BaseURL)
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// buildServer wires every component from configuration.
func buildServer(ctx context.Context, cfg *config.Config, requireAuth bool) (*server.Server, error) {
	registry := skills.NewRegistry()
	registry.Refresh()

	secret, err := auth.LoadOrCreateSecret(filepath.Join(cfg.A2ADir(), "a2a-secret.key"))
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenServiceWithSecret(secret)

	keys, err := auth.NewKeyManager(storage.NewSecretFileRepository[map[string]auth.KeyRecord](
		filepath.Join(cfg.A2ADir(), "a2a-keys.json")))
	if err != nil {
		return nil, err
	}
	creds, err := auth.NewCredentialStore(storage.NewSecretFileRepository[map[string]auth.Credential](
		filepath.Join(cfg.A2ADir(), "outbound-auth.json")))
	if err != nil {
		return nil, err
	}

	cardSvc := card.NewService(card.Options{
		Name:              cfg.AgentName,
		Description:       "Social automation skills over the A2A protocol",
		BaseURL:           cfg.BaseURL,
		Version:           cfg.AgentVersion,
		Streaming:         true,
		PushNotifications: true,
		AuthSchemes:       []string{"bearer", "apiKey"},
		Provider:          &a2a.AgentProvider{Organization: "XActions"},
	}, registry)

	fetcher := card.NewFetcher()
	fetcher.Prepare = func(req *http.Request) {
		creds.Apply(req, req.URL.Scheme+"://"+req.URL.Host)
	}

	agents, err := discovery.NewRegistry(storage.NewFileRepository[map[string]discovery.Entry](
		filepath.Join(cfg.AgentsDir(), "registry.json")), fetcher, creds)
	if err != nil {
		return nil, err
	}
	agents.StartAutoRefresh(ctx)

	trust, err := discovery.NewTrustStore(storage.NewFileRepository[map[string]discovery.TrustRecord](
		filepath.Join(cfg.AgentsDir(), "trust.json")))
	if err != nil {
		return nil, err
	}
	matcher := discovery.NewMatcher(agents)

	var b bridge.Bridge
	if cfg.XActionsAPIURL != "" {
		b = bridge.NewHTTPBridge(cfg.XActionsAPIURL, cfg.SessionCookie)
	} else {
		b = bridge.NewLocalBridge(registry)
	}

	store := task.NewStore(cfg.TaskCapacity)
	executor := task.NewExecutor(store, b)
	streams := stream.NewManager(store)

	subs := push.NewSubscriptionManager(push.NewNotifier(secret))
	subs.Bind(store)

	orch := orchestrator.New(registry, b, matcher, trust, orchestrator.NewDelegator(creds, trust))

	return server.New(server.Deps{
		Config:       cfg,
		Registry:     registry,
		Card:         cardSvc,
		Store:        store,
		Executor:     executor,
		Streams:      streams,
		Subs:         subs,
		PushSecret:   secret,
		Agents:       agents,
		Matcher:      matcher,
		Trust:        trust,
		Orchestrator: orch,
		Auth:         auth.NewAuthenticator(keys, tokens),
		AuthRequired: requireAuth,
		Limiter:      ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute),
	}), nil
}

// ===== CLIENT COMMANDS =====

// StatusCmd prints the server health document.
type StatusCmd struct{}

func (c *StatusCmd) Run(cli *CLI) error {
	return printGet(cli.Server + "/a2a/health")
}

// SkillsCmd lists skills, optionally filtered.
type SkillsCmd struct {
	Query    string `short:"q" help:"Search query."`
	Category string `help:"Filter by category."`
}

func (c *SkillsCmd) Run(cli *CLI) error {
	url := cli.Server + "/a2a/skills"
	sep := "?"
	if c.Query != "" {
		url += sep + "q=" + c.Query
		sep = "&"
	}
	if c.Category != "" {
		url += sep + "category=" + c.Category
	}
	return printGet(url)
}

// AgentsCmd lists registered remote agents.
type AgentsCmd struct{}

func (c *AgentsCmd) Run(cli *CLI) error {
	return printGet(cli.Server + "/a2a/agents")
}

// DiscoverCmd registers remote agents by URL.
type DiscoverCmd struct {
	URLs []string `arg:"" help:"Agent base URLs."`
}

func (c *DiscoverCmd) Run(cli *CLI) error {
	return printPost(cli.Server+"/a2a/agents/discover", map[string]any{"urls": c.URLs})
}

// TaskCmd submits a task and follows it over SSE until done.
type TaskCmd struct {
	Description string `arg:"" help:"Task description."`
	NoStream    bool   `name:"no-stream" help:"Run synchronously instead of streaming."`
}

func (c *TaskCmd) Run(cli *CLI) error {
	method := a2a.MethodTasksSendSubscribe
	if c.NoStream {
		method = a2a.MethodTasksSend
	}

	params, err := json.Marshal(a2a.TaskSendParams{
		Message: a2a.NewUserTextMessage(c.Description),
	})
	if err != nil {
		return err
	}
	body, err := json.Marshal(a2a.Request{
		JSONRPC: a2a.JSONRPCVersion,
		Method:  method,
		Params:  params,
		ID:      uuid.New().String(),
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(cli.Server+"/a2a/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *a2a.ErrorBody  `json:"error"`
	}
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("unexpected response: %s", raw)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	var t a2a.Task
	if err := json.Unmarshal(rpcResp.Result, &t); err != nil {
		return err
	}

	if c.NoStream {
		return printIndented(rpcResp.Result)
	}

	fmt.Printf("task %s submitted\n", t.ID)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumer := stream.NewConsumer()
	return consumer.Listen(ctx, cli.Server+"/a2a/tasks/"+t.ID+"/stream", func(event string, data []byte) {
		fmt.Printf("[%s] %s\n", event, data)
	})
}

func printGet(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return printIndented(body)
}

func printPost(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, out)
	}
	return printIndented(out)
}

func printIndented(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("xactions-a2a"),
		kong.Description("XActions Agent-to-Agent runtime"),
		kong.UsageOnError(),
	)

	logger.Init(logger.ParseLevel(cli.LogLevel), os.Stderr, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
