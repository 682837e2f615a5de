package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"erp-rules/internal/engine"
	"erp-rules/internal/metadata"
	"erp-rules/internal/store"
)

// offlineService loads a rule file into an in-memory catalog.
func offlineService(ctx context.Context, rulesFile string) (*engine.Service, error) {
	rules, err := LoadRuleFile(rulesFile)
	if err != nil {
		return nil, err
	}
	mem := store.NewMemoryRuleStore()
	mem.Seed(rules...)
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, mem, reg); err != nil {
		return nil, err
	}
	return engine.NewService(mem, reg), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRunHookCommand creates the run-hook command.
func NewRunHookCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		rulesFile, dataFile string
		req                 engine.HookRequest
	)

	cmd := &cobra.Command{
		Use:   "run-hook",
		Short: "Run every eligible rule of a hook point against a data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := offlineService(ctx, rulesFile)
			if err != nil {
				return err
			}
			if req.FormData, err = LoadDataFile(dataFile); err != nil {
				return err
			}
			res, err := svc.RunHook(ctx, req)
			if err != nil {
				return fmt.Errorf("run hook %s: %w", req.HookPoint, err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule file (YAML or JSON)")
	cmd.Flags().StringVar(&dataFile, "data", "", "form data file (YAML or JSON)")
	cmd.Flags().StringVar(&req.HookPoint, "hook", "", "hook point name")
	cmd.Flags().StringVar(&req.DataObject, "data-object", "", "entity the form data belongs to")
	cmd.Flags().StringVar(&req.Scope, "scope", "", "rule scope filter")
	cmd.Flags().StringVar(&req.RequestType, "request-type", "", "request type filter")
	for _, f := range []string{"rules", "data", "hook"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// NewExecRuleCommand creates the exec-rule command.
func NewExecRuleCommand(rootOpts *RootOptions) *cobra.Command {
	var rulesFile, dataFile, id string

	cmd := &cobra.Command{
		Use:   "exec-rule",
		Short: "Execute a single rule against a data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := offlineService(ctx, rulesFile)
			if err != nil {
				return err
			}
			data, err := LoadDataFile(dataFile)
			if err != nil {
				return err
			}
			res, err := svc.ExecuteRule(ctx, id, data)
			if err != nil {
				return fmt.Errorf("execute rule %s: %w", id, err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule file (YAML or JSON)")
	cmd.Flags().StringVar(&dataFile, "data", "", "data file (YAML or JSON)")
	cmd.Flags().StringVar(&id, "id", "", "rule id")
	for _, f := range []string{"rules", "data", "id"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
