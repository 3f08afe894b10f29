package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// woPattern finds WO publication numbers in free text: "WO2016168716",
// "WO 2016/168716", "WO-2016 168716".
var woPattern = regexp.MustCompile(`(?i)WO[\s-]?(\d{4})[\s/]?(\d{6})`)

// BuildQueryPlan lists search queries in priority order: one per filing
// year, two per development code, one per company and two generic ones,
// capped at plan.MaxQueries.
func BuildQueryPlan(molecule string, devCodes []string, plan DiscoveryPlan) []string {
	queries := []string{}
	for year := plan.YearFrom; year > 0 && year <= plan.YearTo; year++ {
		queries = append(queries, fmt.Sprintf("%s patent WO%d", molecule, year))
	}

	codes := devCodes
	if plan.MaxDevCodes >= 0 && len(codes) > plan.MaxDevCodes {
		codes = codes[:plan.MaxDevCodes]
	}
	for _, code := range codes {
		queries = append(queries,
			fmt.Sprintf("%s patent WO", code),
			fmt.Sprintf("%q WO patent", code),
		)
	}

	for _, company := range plan.Companies {
		if company = strings.TrimSpace(company); company != "" {
			queries = append(queries, fmt.Sprintf("%s %s patent", molecule, company))
		}
	}

	queries = append(queries,
		fmt.Sprintf("%q pharmaceutical patent WO", molecule),
		fmt.Sprintf("%q compound patent WO", molecule),
	)

	if plan.MaxQueries > 0 && len(queries) > plan.MaxQueries {
		queries = queries[:plan.MaxQueries]
	}
	return queries
}

// ExtractWONumbers returns the normalised WO numbers found in text, in
// order of appearance.
func ExtractWONumbers(text string) []string {
	matches := woPattern.FindAllStringSubmatch(text, -1)
	numbers := make([]string, 0, len(matches))
	for _, m := range matches {
		numbers = append(numbers, "WO"+m[1]+m[2])
	}
	return numbers
}

// discoverCandidates runs the query plan with bounded concurrency. Failed
// queries are counted, not fatal.
func discoverCandidates(ctx context.Context, engine interfaces.SearchEngine, queries []string, plan DiscoveryPlan, logger arbor.ILogger) (*models.DiscoveryPayload, []error) {
	payload := &models.DiscoveryPayload{
		Candidates:     []string{},
		QueriesPlanned: len(queries),
	}

	var (
		mu     sync.Mutex
		found  = map[string]bool{}
		errs   []error
		g      errgroup.Group
		limit  = plan.Concurrency
		hitNum = plan.ResultsPerQuery
	)
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, query := range queries {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results, err := engine.Search(ctx, query, hitNum)

			mu.Lock()
			defer mu.Unlock()
			payload.QueriesRun++
			if err != nil {
				payload.QueriesFailed++
				errs = append(errs, fmt.Errorf("query %q: %w", query, err))
				logger.Debug().Str("query", query).Err(err).Msg("Discovery query failed")
				return nil
			}
			for _, r := range results {
				for _, wo := range ExtractWONumbers(r.Title + " " + r.Snippet + " " + r.Link) {
					payload.TotalFound++
					found[wo] = true
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for wo := range found {
		payload.Candidates = append(payload.Candidates, wo)
	}
	sort.Strings(payload.Candidates)
	return payload, errs
}
