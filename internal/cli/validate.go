package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"erp-rules/internal/engine"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var rulesFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check rule definitions without running them",
		Long: `Validate every rule in a file: required fields, enums, and that each
expression, check and pattern compiles. Exits non-zero when any rule is invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := LoadRuleFile(rulesFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			invalid := 0
			for i, r := range rules {
				errs := engine.ValidateRule(r)
				if len(errs) == 0 {
					continue
				}
				invalid++
				name := r.ID
				if name == "" {
					name = fmt.Sprintf("#%d", i+1)
				}
				for _, e := range errs {
					fmt.Fprintf(out, "rule %s: %s: %s\n", name, e.Field, e.Message)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d rules invalid", invalid, len(rules))
			}
			fmt.Fprintf(out, "%d rules valid\n", len(rules))
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}
