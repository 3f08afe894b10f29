package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/pharmyrus/internal/services/report"
)

var wipoCmd = &cobra.Command{
	Use:   "wipo <identifier>",
	Short: "Extract one WO patent's details and national phase filings",
	Example: `  pharmyrus wipo WO2016168716
  pharmyrus wipo "WO 2016/168716" --country US -f markdown`,
	Args: cobra.ExactArgs(1),
	RunE: runWIPO,
}

var wipoCountry string

func init() {
	wipoCmd.Flags().StringVar(&wipoCountry, "country", "", "Jurisdiction to filter national phase filings by (default from config)")
}

func runWIPO(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	result, fetchErr := application.Pool.FetchPatent(cmd.Context(), args[0], wipoCountry)
	if result == nil {
		return fetchErr
	}

	data, err := report.Render(outputFormat, result.Record.PublicationNumber, result, func() string {
		return report.ExtractionMarkdown(result)
	})
	if err != nil {
		return err
	}
	if err := writeOutput(data); err != nil {
		return err
	}
	return fetchErr
}
