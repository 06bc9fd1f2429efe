// File: cmd/heal.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
	"github.com/glaciousm/intent-healer-sub001/internal/breaker"
	"github.com/glaciousm/intent-healer-sub001/internal/config"
	"github.com/glaciousm/intent-healer-sub001/internal/guardrail"
	"github.com/glaciousm/intent-healer-sub001/internal/healcache"
	"github.com/glaciousm/intent-healer-sub001/internal/healer"
	"github.com/glaciousm/intent-healer-sub001/internal/llmclient"
	"github.com/glaciousm/intent-healer-sub001/internal/observability"
	"github.com/glaciousm/intent-healer-sub001/internal/orchestrator"
	"github.com/glaciousm/intent-healer-sub001/internal/snapshot"
	"github.com/glaciousm/intent-healer-sub001/internal/trust"
)

var healFlags struct {
	pageURL     string
	scenario    string
	stepText    string
	strategy    string
	locator     string
	action      string
	kind        string
	message     string
	value       string
	policy      string
	destructive bool
}

// newHealCmd creates the one-shot heal command. It opens the page, runs a
// single failure through the pipeline and prints the result as JSON.
func newHealCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Run one locator failure through the healing pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeal(cmd.Context(), appCfg, observability.GetLogger())
		},
	}

	cmd.Flags().StringVar(&healFlags.pageURL, "url", "", "URL of the page the step failed on")
	cmd.Flags().StringVar(&healFlags.scenario, "scenario", "ad-hoc", "scenario name the step belongs to")
	cmd.Flags().StringVar(&healFlags.stepText, "step", "", "text of the failed step")
	cmd.Flags().StringVar(&healFlags.strategy, "strategy", "CSS", "locator strategy (ID, NAME, CSS, XPATH, ...)")
	cmd.Flags().StringVar(&healFlags.locator, "locator", "", "locator value that failed")
	cmd.Flags().StringVar(&healFlags.action, "action", "CLICK", "action the step attempted")
	cmd.Flags().StringVar(&healFlags.kind, "kind", "NO_SUCH_ELEMENT", "failure kind")
	cmd.Flags().StringVar(&healFlags.message, "message", "", "original failure message")
	cmd.Flags().StringVar(&healFlags.value, "value", "", "input value for actions that need one")
	cmd.Flags().StringVar(&healFlags.policy, "policy", "SUGGEST", "heal policy (OFF, SUGGEST, AUTO_SAFE, AUTO_ALL)")
	cmd.Flags().BoolVar(&healFlags.destructive, "destructive", false, "mark the step as destructive")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("step")
	_ = cmd.MarkFlagRequired("locator")

	return cmd
}

// runHeal wires the real pipeline and executes one heal attempt.
func runHeal(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	failure, err := schemas.NewFailureContext(
		healFlags.scenario,
		healFlags.stepText,
		schemas.LocatorInfo{
			Strategy: schemas.LocatorStrategy(healFlags.strategy),
			Value:    healFlags.locator,
		},
		schemas.ActionType(healFlags.action),
		schemas.FailureKind(healFlags.kind),
		healFlags.pageURL,
	)
	if err != nil {
		return err
	}
	failure.ExceptionMessage = healFlags.message
	failure.Value = healFlags.value

	intent, err := schemas.NewIntentContract(healFlags.stepText, schemas.HealPolicy(healFlags.policy), healFlags.destructive)
	if err != nil {
		return err
	}

	llmClient, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	defer llmClient.Close()

	guard, err := guardrail.NewChecker(cfg.Guardrail)
	if err != nil {
		return fmt.Errorf("failed to build guardrails: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Snapshot.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	sessionCtx, cancelSession := chromedp.NewContext(allocCtx)
	defer cancelSession()

	navCtx, cancelNav := context.WithTimeout(sessionCtx, cfg.Snapshot.NavigationTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(healFlags.pageURL)); err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	provider, err := snapshot.NewProvider(sessionCtx, cfg.Snapshot, logger)
	if err != nil {
		return err
	}
	executor, err := snapshot.NewExecutor(sessionCtx, logger)
	if err != nil {
		return err
	}

	engine, err := healer.NewEngine(
		breaker.New(cfg.Breaker, logger),
		guard,
		healcache.New(cfg.Cache, logger),
		trust.NewManager(cfg.Trust, logger),
		orchestrator.New(llmClient, cfg.LLM, logger),
		provider,
		executor,
		healer.NewRegistry(),
		healer.NewSummary(),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to assemble healing engine: %w", err)
	}

	result := engine.Heal(ctx, failure, intent)

	stats := engine.Summary().Snapshot()
	logger.Info("Heal run finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("attempts", stats.Total),
		zap.Float64("total_cost_usd", stats.TotalCostUSD))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}

	if result.Outcome == schemas.OutcomeFailed {
		return fmt.Errorf("heal attempt failed: %s", result.Message)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newHealCmd())
}
