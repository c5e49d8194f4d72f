package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/reina/internal/config"
	"github.com/harun/reina/internal/logger"
	"github.com/harun/reina/internal/observability"
	"github.com/harun/reina/internal/tracing"
	"github.com/harun/reina/pkg/agent"
	"github.com/harun/reina/pkg/coretools"
	"github.com/harun/reina/pkg/schedule"
	"github.com/harun/reina/pkg/session"
)

var (
	runSystemPrompt string
	runModel        string
	runSessionKey   string
	runResume       bool
	runWorkspace    string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Run the agent with a prompt",
	Long: `Run the agent with the given prompt and stream its output.
Ctrl-C aborts the run at the next turn boundary. With --resume the
session history is loaded first and the run continues from it.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runSystemPrompt, "system", "", "system prompt (overrides config)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model to use (overrides config)")
	runCmd.Flags().StringVar(&runSessionKey, "session", "", "session key (default generates a new one)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume the session instead of starting fresh")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "", "workspace root for file tools (default cwd)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	zl := lg.Zerolog()

	observability.EnsureRegistered()
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.MetricsHandler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				zl.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	if err := tracing.InitOpenTelemetry("reina"); err != nil {
		zl.Warn().Err(err).Msg("Tracing disabled")
	}
	defer tracing.ShutdownOpenTelemetry(context.Background())

	model := cfg.Agent.Model
	if runModel != "" {
		model = runModel
	}
	systemPrompt := cfg.Agent.SystemPrompt
	if runSystemPrompt != "" {
		systemPrompt = runSystemPrompt
	}

	profile, err := profileForModel(cfg, model)
	if err != nil {
		return err
	}
	provider, err := (&agent.ProviderFactory{}).NewProvider(agent.AuthProfile{
		ID:       profile.ID,
		Provider: profile.Provider,
		APIKey:   profile.APIKey,
	})
	if err != nil {
		return err
	}

	workspaceRoot := runWorkspace
	if workspaceRoot == "" {
		workspaceRoot, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve workspace root: %w", err)
		}
	}
	registry := agent.NewRegistry()
	if err := coretools.RegisterCoreTools(registry, coretools.Options{WorkspaceRoot: workspaceRoot}); err != nil {
		return err
	}

	bus := agent.NewBus(zl)
	bus.Subscribe(newConsoleObserver(cmd.OutOrStdout()))

	sessions, err := session.New("")
	if err != nil {
		return err
	}
	sessionKey := runSessionKey
	if sessionKey == "" {
		sessionKey = session.NewKey()
	}

	loop := agent.NewLoop(provider, registry, bus, zl, model, agent.Options{
		SteeringMode:  agent.DrainMode(cfg.Agent.SteeringMode),
		FollowUpMode:  agent.DrainMode(cfg.Agent.FollowUpMode),
		ThinkingLevel: cfg.Agent.ThinkingLevel,
		MaxTokens:     cfg.Agent.MaxTokens,
		OnMessage:     sessions.Recorder(sessionKey),
	})

	runtime := agent.NewRuntime(loop, agent.RuntimeConfig{
		MaxRetries:     cfg.Agent.MaxRetries,
		BackoffCap:     backoffCap(cfg),
		FallbackModels: cfg.Agent.FallbackModels,
	}, zl)

	if len(cfg.Schedules) > 0 {
		svc, err := schedule.NewService(schedule.ServiceOptions{
			Target:    runtime,
			StorePath: filepath.Join(filepath.Dir(sessionStorePath()), "schedules.json"),
		})
		if err != nil {
			return err
		}
		defer svc.Stop()
		for _, rule := range cfg.Schedules {
			inject := schedule.InjectFollowUp
			if rule.Kind == "steering" {
				inject = schedule.InjectSteering
			}
			if _, err := svc.Add(schedule.AddParams{
				Name:    rule.Cron,
				Prompt:  rule.Prompt,
				Inject:  inject,
				Enabled: true,
				Spec:    schedule.Spec{Kind: schedule.KindCron, Expr: rule.Cron},
			}); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", rule.Cron, err)
			}
		}
	}

	ctx := tracing.NewRequestContext(cmd.Context())
	ctx = tracing.WithSessionKey(ctx, sessionKey)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(cmd.ErrOrStderr(), "aborting...")
		runtime.Abort()
	}()

	var reason agent.EndReason
	if runResume {
		history, err := sessions.Load(sessionKey)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return fmt.Errorf("session %s has no history to resume", sessionKey)
		}
		loop.Resume(history)
		if len(args) > 0 {
			loop.FollowUp(strings.Join(args, " "))
		}
		_, reason = runtime.Continue(ctx)
	} else {
		if len(args) == 0 {
			return fmt.Errorf("a prompt is required (or use --resume)")
		}
		prompt := strings.Join(args, " ")
		_, reason = runtime.Run(ctx, []string{prompt}, systemPrompt)
	}

	zl.Info().
		Str("session_key", sessionKey).
		Str("reason", string(reason)).
		Msg("Run finished")

	if reason == agent.EndReasonError {
		return fmt.Errorf("run ended with an error (session %s)", sessionKey)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session: %s\n", sessionKey)
	return nil
}

// profileForModel picks the auth profile whose backend serves the model,
// falling back to the first configured profile.
func profileForModel(cfg *config.Config, model string) (config.AuthProfile, error) {
	if len(cfg.Auth) == 0 {
		return config.AuthProfile{}, fmt.Errorf("no auth profiles configured")
	}

	want := ""
	switch {
	case strings.HasPrefix(model, "claude"):
		want = "anthropic"
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		want = "openai"
	}
	if want != "" {
		for _, profile := range cfg.Auth {
			if profile.Provider == want {
				return profile, nil
			}
		}
	}
	return cfg.Auth[0], nil
}

func backoffCap(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Agent.BackoffCapSecs) * time.Second
}

func sessionStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".reina", "sessions")
	}
	return filepath.Join(home, ".reina", "sessions")
}
