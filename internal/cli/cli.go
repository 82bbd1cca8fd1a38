// Package cli implements cloverctl, which runs the resolution pipeline over
// entity files without a server.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rules"
)

type options struct {
	rulesPath  string
	entityType string
	format     string
	output     string
	strategy   string
}

// NewRootCommand builds the cloverctl command tree
func NewRootCommand(cfg *config.Config, logger ectologger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "cloverctl",
		Short:         "Resolve, cluster and merge entity files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newResolveCommand(cfg, logger),
		newClusterCommand(cfg, logger),
		newCanonicalizeCommand(logger),
		newRulesCommand(cfg),
	)
	return root
}

// readEntities accepts a bare JSON array or a {"entities": [...]} document
func readEntities(path string) ([]models.EntityRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities %s: %w", path, err)
	}

	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("[")) {
		var entities []models.EntityRecord
		if err := json.Unmarshal(raw, &entities); err != nil {
			return nil, fmt.Errorf("failed to parse entities %s: %w", path, err)
		}
		return entities, nil
	}

	var req models.ResolveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("failed to parse entities %s: %w", path, err)
	}
	return req.Entities, nil
}

func loadRuleSet(cfg *config.Config, path string, defaultWeights map[string]float64) (*rules.RuleSet, error) {
	var (
		list []models.MatchingRule
		err  error
	)
	if path != "" {
		list, err = rules.LoadFile(path)
	} else {
		list, err = cfg.MatchingRules()
	}
	if err != nil {
		return nil, err
	}
	return rules.New(list, defaultWeights)
}

// openOutput returns stdout unless a file path is given
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
