package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paperforge/orchestrator/internal/orchestrator"
	"github.com/paperforge/orchestrator/pkg/logger"
	"github.com/paperforge/orchestrator/pkg/types"
)

var runJSONOutput string

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a task plan in standalone mode",
	Long: `Execute a task plan file in standalone mode, with the built-in echo
agents registered for every role. Tasks run respecting the plan's dependency
order; the per-task results are printed as JSON.`,
	Example: `  # Run a plan
  orchestrator run plan.yaml

  # Write the results to a file
  orchestrator run --out-json results.json plan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runJSONOutput, "out-json", "", "write the plan results to a JSON file")
}

// planFile is the on-disk plan format.
type planFile struct {
	Tasks          []*types.Task       `yaml:"tasks"`
	Dependencies   map[string][]string `yaml:"dependencies"`
	RequiredAgents []types.AgentRole   `yaml:"required_agents"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	plan, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	orc := orchestrator.New(cfg, logger.L())

	ctx := context.Background()
	for _, ag := range builtinAgents() {
		if err := orc.RegisterAgent(ctx, ag); err != nil {
			return fmt.Errorf("failed to register agent: %w", err)
		}
	}

	if err := orc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = orc.Stop(stopCtx)
	}()

	results, err := orc.ExecutePlan(ctx, plan)
	if err != nil {
		return fmt.Errorf("plan execution failed: %w", err)
	}

	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}

	if runJSONOutput != "" {
		if err := os.WriteFile(runJSONOutput, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
		fmt.Printf("results written to %s\n", runJSONOutput)
		return nil
	}

	fmt.Println(string(encoded))
	return nil
}

func loadPlan(path string) (*types.ExecutionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if len(pf.Tasks) == 0 {
		return nil, fmt.Errorf("plan file has no tasks")
	}

	nodes := make([]*types.TaskNode, 0, len(pf.Tasks))
	for _, task := range pf.Tasks {
		nodes = append(nodes, types.NewTaskNode(task))
	}

	return &types.ExecutionPlan{
		Tasks:          nodes,
		Dependencies:   pf.Dependencies,
		RequiredAgents: pf.RequiredAgents,
	}, nil
}
