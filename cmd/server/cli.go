package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/ai/classify"
	"github.com/irfndi/modelmux/internal/analytics"
	"github.com/irfndi/modelmux/internal/config"
	"github.com/irfndi/modelmux/internal/services"
)

// runModelsCLI prints the model catalog as a table. The listing always shows
// the full catalog; the CONFIGURED column marks providers with credentials.
func runModelsCLI(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	providerFilter := ""
	for i, arg := range args {
		switch arg {
		case "--provider":
			if i+1 < len(args) {
				providerFilter = args[i+1]
			}
		case "--catalog":
			if i+1 < len(args) {
				cfg.Catalog.Path = args[i+1]
			}
		case "--help", "-h":
			printModelsUsage()
			return nil
		}
	}

	registry, err := buildRegistry(cfg, zap.NewNop(), false)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KEY\tPROVIDER\tMODEL\tCONTEXT\tIN $/1M\tOUT $/1M\tP50\tCONFIGURED\tNOTES")

	for _, m := range registry.Snapshot() {
		if providerFilter != "" && m.Provider != providerFilter {
			continue
		}

		configured := "✗"
		if cfg.Providers.KeyFor(m.Provider) != "" {
			configured = "✓"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%s\t$%s\t%.2fs\t%s\t%s\n",
			m.Key,
			m.Provider,
			m.ProviderModelName,
			m.ContextWindowTokens,
			m.PriceInputPerMillion.StringFixed(2),
			m.PriceOutputPerMillion.StringFixed(2),
			m.LatencyP50Seconds,
			configured,
			truncate(m.Notes, 40),
		)
	}

	return w.Flush()
}

// runRouteCLI classifies a prompt and prints the routing decision. By
// default no provider is called; --invoke sends the prompt to the selected
// backend and prints the completion.
func runRouteCLI(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "--") {
		printRouteUsage()
		return fmt.Errorf("missing prompt")
	}
	prompt := args[0]

	presetArg := ""
	invoke := false
	outputJSON := false
	flags := args[1:]
	for i, arg := range flags {
		switch arg {
		case "--preset":
			if i+1 < len(flags) {
				presetArg = flags[i+1]
			}
		case "--invoke":
			invoke = true
		case "--json":
			outputJSON = true
		case "--help", "-h":
			printRouteUsage()
			return nil
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if presetArg == "" {
		presetArg = cfg.Router.DefaultPriorityPreset
	}
	preset, err := ai.ParsePreset(presetArg)
	if err != nil {
		return fmt.Errorf("invalid preset: %w", err)
	}

	if invoke {
		return invokePrompt(cfg, prompt, preset, outputJSON)
	}
	return printDecision(cfg, prompt, preset, outputJSON)
}

// printDecision runs keyword classification and model selection over the
// full catalog without touching any provider.
func printDecision(cfg *config.Config, prompt string, preset ai.Preset, outputJSON bool) error {
	registry, err := buildRegistry(cfg, zap.NewNop(), false)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	classifier := classify.NewHybridClassifier(nil)
	result := classifier.Classify(context.Background(), prompt)

	router := ai.NewRouter(registry)
	decision, err := router.Route(ai.RoutingRequest{
		Prompt:   prompt,
		Category: result.Classification.Category,
		Preset:   preset,
	})
	if err != nil {
		return fmt.Errorf("routing failed: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"classification": result.Classification,
			"decision":       decision,
		})
	}

	fmt.Printf("Category: %s (confidence %.2f, %s)\n", decision.Category, result.Classification.Confidence, result.FinalMethod)
	fmt.Printf("Selected Model: %s\n", decision.SelectedKey)
	fmt.Printf("Provider: %s\n", decision.Provider)
	fmt.Printf("Score: %.2f\n", decision.Score)
	fmt.Printf("Estimated Cost: $%.6f\n", decision.EstimatedCostUsd)
	fmt.Printf("Estimated Latency: %.0f ms\n", decision.EstimatedLatencyMs)
	fmt.Printf("Reason: %s\n", decision.Reasoning)
	fmt.Println()

	if len(decision.Alternatives) > 0 {
		fmt.Println("Alternatives:")
		for i, alt := range decision.Alternatives {
			fmt.Printf("  %d. %s (%s) score %.2f\n", i+1, alt.Key, alt.Provider, alt.Score)
		}
	}

	return nil
}

// invokePrompt routes the prompt through the full service pipeline and
// prints the completion. Requires credentials for the selected provider.
func invokePrompt(cfg *config.Config, prompt string, preset ai.Preset, outputJSON bool) error {
	registry, err := buildRegistry(cfg, zap.NewNop(), true)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	if registry.Len() == 0 {
		return fmt.Errorf("no providers configured; set an API key first")
	}

	factory := configureClients(cfg, registry, zap.NewNop())
	defer factory.Close()

	classifier := classify.NewHybridClassifier(classifierBackend(factory, zap.NewNop()))

	routerService := services.NewRouterService(
		services.RouterServiceConfig{
			RequestTimeoutMs: cfg.Router.RequestTimeoutMs,
			DefaultPreset:    preset,
		},
		registry,
		ai.NewRouter(registry),
		classifier,
		factory,
		analytics.NewRequestLog(0),
		zap.NewNop(),
	)

	resp, err := routerService.RoutePrompt(context.Background(), services.RoutePromptRequest{
		Prompt: prompt,
		Preset: preset,
	})
	if err != nil {
		return fmt.Errorf("routing failed: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("Model Used: %s\n", resp.ModelUsed)
	fmt.Printf("Category: %s (confidence %.2f)\n", resp.Category, resp.ClassificationConfidence)
	fmt.Printf("Cost: $%.6f\n", resp.ActualCostUsd)
	fmt.Printf("Latency: %.0f ms\n", resp.ActualLatencyMs)
	fmt.Println()
	fmt.Println(resp.Text)

	return nil
}

func printModelsUsage() {
	fmt.Println("Usage: modelmux models [arguments]")
	fmt.Println()
	fmt.Println("Arguments:")
	fmt.Println("  --provider <name>  Only show models from one provider")
	fmt.Println("  --catalog <path>   Load the catalog from a YAML file")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  modelmux models")
	fmt.Println("  modelmux models --provider openai")
}

func printRouteUsage() {
	fmt.Println("Usage: modelmux route <prompt> [arguments]")
	fmt.Println()
	fmt.Println("Arguments:")
	fmt.Println("  --preset <name>  Priority preset: balanced, quality, cost, latency")
	fmt.Println("  --invoke         Send the prompt to the selected provider")
	fmt.Println("  --json           Print the result as JSON")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  modelmux route \"Write a binary search in Go\"")
	fmt.Println("  modelmux route \"Summarize this article\" --preset cost")
	fmt.Println("  modelmux route \"What is a monad?\" --invoke")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
