package cli

import (
	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/clustering"
	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

type clusterOutput struct {
	Clusters  []models.Cluster         `json:"clusters"`
	Canonical []models.CanonicalEntity `json:"canonical"`
}

func newClusterCommand(cfg *config.Config, logger ectologger.Logger) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "cluster <entities.json>",
		Short: "Resolve an entity file, group accepted matches and merge each group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := readEntities(args[0])
			if err != nil {
				return err
			}
			result, err := resolveEntities(cmd.Context(), cfg, logger, entities, opts)
			if err != nil {
				return err
			}

			clusters, err := clustering.NewBuilder(logger).Build(cmd.Context(), result.Candidates, entities)
			if err != nil {
				return err
			}
			canonical, err := merging.NewCanonicalizer(logger).CanonicalizeAll(cmd.Context(), clusters, entities, models.MergeStrategyType(opts.strategy))
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(cmd, opts.output)
			if err != nil {
				return err
			}
			defer closeOut()
			return writeJSON(out, clusterOutput{Clusters: clusters, Canonical: canonical})
		},
	}
	cmd.Flags().StringVar(&opts.rulesPath, "rules", "", "JSON or YAML rule file, defaults to MATCHING_RULES_PATH or the built-in rules")
	cmd.Flags().StringVar(&opts.entityType, "entity-type", "", "only resolve records of this type")
	cmd.Flags().StringVar(&opts.strategy, "strategy", string(models.MergeStrategyPreferEntity1), "merge strategy")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newCanonicalizeCommand(logger ectologger.Logger) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "canonicalize <entities.json>",
		Short: "Merge every record in a file into one canonical entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := readEntities(args[0])
			if err != nil {
				return err
			}
			canonical, err := merging.NewCanonicalizer(logger).Canonicalize(cmd.Context(), entities, models.MergeStrategyType(opts.strategy))
			if err != nil {
				if !ererrors.IsEmptyInputError(err) || canonical == nil {
					return err
				}
				logger.WithContext(cmd.Context()).WithField("entities", len(entities)).Debug("Nothing to canonicalize")
			}

			out, closeOut, err := openOutput(cmd, opts.output)
			if err != nil {
				return err
			}
			defer closeOut()
			return writeJSON(out, canonical)
		},
	}
	cmd.Flags().StringVar(&opts.strategy, "strategy", string(models.MergeStrategyPreferEntity1), "merge strategy")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
