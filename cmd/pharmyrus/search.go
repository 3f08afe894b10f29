package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/pharmyrus/internal/services/pipeline"
	"github.com/ternarybob/pharmyrus/internal/services/report"
)

var searchCmd = &cobra.Command{
	Use:   "search <molecule>",
	Short: "Run the full patent intelligence pipeline for a molecule",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var (
	searchCountry string
	searchLimit   int
)

func init() {
	searchCmd.Flags().StringVar(&searchCountry, "country", "", "Keep only patents with filings in this country (ISO code)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum WO candidates to extract (0 uses the configured default)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	molecule := strings.Join(args, " ")

	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	result, runErr := application.Pipeline.RunPipeline(cmd.Context(), molecule, searchCountry, searchLimit)
	if result == nil {
		return runErr
	}

	data, err := report.Render(outputFormat, "Pharmyrus: "+result.Molecule, result, func() string {
		return report.Markdown(result)
	})
	if err != nil {
		return err
	}
	if err := writeOutput(data); err != nil {
		return err
	}

	if errors.Is(runErr, pipeline.ErrTotalFailure) {
		return fmt.Errorf("no layer produced data for %q: %w", molecule, runErr)
	}
	return runErr
}
