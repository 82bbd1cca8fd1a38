package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/rules"
)

func newRulesCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect matching rule files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in rules as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(struct {
				Rules []models.MatchingRule `yaml:"rules"`
			}{Rules: rules.DefaultRules()}); err != nil {
				return err
			}
			return enc.Close()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <rules.yaml>",
		Short: "Check a rule file against the configured weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, err := cfg.ResolutionConfig()
			if err != nil {
				return err
			}
			rs, err := loadRuleSet(cfg, args[0], resolution.DefaultWeights)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules, %d enabled\n", args[0], rs.Len(), len(rs.Enabled()))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps",
		Short: "List the normalization steps a rule may name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range normalizers.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	})

	return cmd
}
