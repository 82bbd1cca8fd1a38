package cli

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/export"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newResolveCommand(cfg *config.Config, logger ectologger.Logger) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "resolve <entities.json>",
		Short: "Find match candidates in an entity file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var format export.Format
			if opts.format != "" {
				f, err := export.ParseFormat(opts.format)
				if err != nil {
					return err
				}
				format = f
			}

			entities, err := readEntities(args[0])
			if err != nil {
				return err
			}
			result, err := resolveEntities(cmd.Context(), cfg, logger, entities, opts)
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(cmd, opts.output)
			if err != nil {
				return err
			}
			defer closeOut()

			if format == "" {
				return writeJSON(out, result)
			}
			return export.Write(out, format, result.Candidates)
		},
	}
	cmd.Flags().StringVar(&opts.rulesPath, "rules", "", "JSON or YAML rule file, defaults to MATCHING_RULES_PATH or the built-in rules")
	cmd.Flags().StringVar(&opts.entityType, "entity-type", "", "only resolve records of this type")
	cmd.Flags().StringVar(&opts.format, "format", "", "write candidates as csv, json or xlsx instead of the full result")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// resolveEntities runs one batch. An empty batch is not an error here.
func resolveEntities(ctx context.Context, cfg *config.Config, logger ectologger.Logger, entities []models.EntityRecord, opts options) (*models.ResolutionResult, error) {
	resolution, err := cfg.ResolutionConfig()
	if err != nil {
		return nil, err
	}
	rs, err := loadRuleSet(cfg, opts.rulesPath, resolution.DefaultWeights)
	if err != nil {
		return nil, err
	}

	result, err := matching.NewResolver(logger).Resolve(ctx, entities, rs, resolution, matching.Options{EntityType: opts.entityType})
	if err != nil && !ererrors.IsEmptyInputError(err) {
		return nil, err
	}
	logger.WithContext(ctx).WithFields(map[string]any{
		"entities":   len(entities),
		"candidates": len(result.Candidates),
	}).Debug("Resolved entity file")
	return result, nil
}
