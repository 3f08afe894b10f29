package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
)

// Field names used in the debug trace
const (
	FieldTitle           = "title"
	FieldAbstract        = "abstract"
	FieldApplicant       = "applicant"
	FieldInventors       = "inventors"
	FieldFilingDate      = "filing_date"
	FieldPublicationDate = "publication_date"
	FieldPriorityDate    = "priority_date"
	FieldClassification  = "classification_codes"
	FieldPDFLink         = "pdf_link"
	FieldNationalTab     = "national_phase_tab"
	FieldNationalRows    = "national_phase_rows"
)

const (
	abstractMaxLen = 500
	codeMaxLen     = 50
	listItemMinLen = 3
)

var (
	listSeparators = regexp.MustCompile(`[;/,]`)
	codeSeparators = regexp.MustCompile(`[;,]`)
)

// TabStrategy is one way of locating the national phase tab
type TabStrategy struct {
	Name    string
	Locator interfaces.Locator
}

// StrategySet is the full catalogue of strategies used by the crawler
type StrategySet struct {
	Title           *Chain[string]
	Abstract        *Chain[string]
	Applicant       *Chain[string]
	Inventors       *Chain[[]string]
	FilingDate      *Chain[string]
	PublicationDate *Chain[string]
	PriorityDate    *Chain[string]
	Classification  *Chain[[]string]
	PDFLink         *Chain[string]
	Tabs            []TabStrategy
	Rows            *Chain[[]interfaces.DOMNode]
}

// Count returns the total number of strategies across all fields
func (s *StrategySet) Count() int {
	return s.Title.Len() + s.Abstract.Len() + s.Applicant.Len() + s.Inventors.Len() +
		s.FilingDate.Len() + s.PublicationDate.Len() + s.PriorityDate.Len() +
		s.Classification.Len() + s.PDFLink.Len() + len(s.Tabs) + s.Rows.Len()
}

// DefaultStrategies builds the catalogue for the patent detail page.
// baseURL is used to absolutise relative PDF links.
func DefaultStrategies(baseURL string) *StrategySet {
	return &StrategySet{
		Title: NewChain(FieldTitle,
			Strategy[string]{Name: "h3.tab_title", Locator: css("h3.tab_title"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "div.title", Locator: css("div.title"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "h1.patent-title", Locator: css("h1.patent-title"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "span.patentTitle", Locator: css("span.patentTitle"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "meta[DC.title]", Locator: css(`meta[name="DC.title"]`), Extract: firstAttr("content")},
			Strategy[string]{Name: "label:Title", Locator: labelCell("Title"), Extract: firstText(1, 0)},
		),
		Abstract: NewChain(FieldAbstract,
			Strategy[string]{Name: "div.abstract", Locator: css("div.abstract"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "div#abstract", Locator: css("div#abstract"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "p.abstract-text", Locator: css("p.abstract-text"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "div.description", Locator: css("div.description"), Extract: truncated(firstText(1, 0), abstractMaxLen)},
			Strategy[string]{Name: "meta[DC.description]", Locator: css(`meta[name="DC.description"]`), Extract: firstAttr("content")},
			Strategy[string]{Name: "label:Abstract", Locator: labelCell("Abstract"), Extract: truncated(firstText(1, 0), abstractMaxLen)},
		),
		Applicant: NewChain(FieldApplicant,
			Strategy[string]{Name: "label:Applicant", Locator: labelCell("Applicant"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "label:Applicants", Locator: labelCell("Applicants"), Extract: firstText(1, 0)},
			Strategy[string]{Name: ".applicantData", Locator: css(".applicantData"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "div.applicant", Locator: css("div.applicant"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "span.applicant-name", Locator: css("span.applicant-name"), Extract: firstText(1, 0)},
			Strategy[string]{Name: "meta[DC.contributor]", Locator: css(`meta[name="DC.contributor"]`), Extract: firstAttr("content")},
			Strategy[string]{Name: "row:Applicant", Locator: labelRow("Applicant"), Extract: rowValue(1)},
		),
		Inventors: NewChain(FieldInventors,
			Strategy[[]string]{Name: "label:Inventor", Locator: labelCell("Inventor"), Extract: splitList(0)},
			Strategy[[]string]{Name: ".inventorData", Locator: css(".inventorData"), Extract: splitList(0)},
			Strategy[[]string]{Name: "div.inventor", Locator: css("div.inventor"), Extract: splitList(0)},
			Strategy[[]string]{Name: "span.inventor-name", Locator: css("span.inventor-name"), Extract: splitList(0)},
			Strategy[[]string]{Name: "li.inventor", Locator: css("li.inventor"), Extract: splitList(0)},
			Strategy[[]string]{Name: "row:Inventors", Locator: labelRow("Inventor"), Extract: rowList(0)},
		),
		FilingDate: NewChain(FieldFilingDate,
			Strategy[string]{Name: "row:Filing Date", Locator: labelRow("Filing Date"), Extract: rowDate()},
			Strategy[string]{Name: "row:Application Date", Locator: labelRow("Application Date"), Extract: rowDate()},
			Strategy[string]{Name: "row:International Filing Date", Locator: labelRow("International Filing Date"), Extract: rowDate()},
			Strategy[string]{Name: "label:Filing Date", Locator: labelCell("Filing Date"), Extract: dateText()},
		),
		PublicationDate: NewChain(FieldPublicationDate,
			Strategy[string]{Name: "row:Publication Date", Locator: labelRow("Publication Date"), Extract: rowDate()},
			Strategy[string]{Name: "row:International Publication Date", Locator: labelRow("International Publication Date"), Extract: rowDate()},
			Strategy[string]{Name: "meta[DC.date]", Locator: css(`meta[name="DC.date"]`), Extract: dateAttr("content")},
		),
		PriorityDate: NewChain(FieldPriorityDate,
			Strategy[string]{Name: "row:Priority Date", Locator: labelRow("Priority Date"), Extract: rowDate()},
			Strategy[string]{Name: "row:Priority", Locator: labelRow("Priority"), Extract: rowDate()},
			Strategy[string]{Name: "label:Priority Data", Locator: labelCell("Priority Data"), Extract: dateText()},
		),
		Classification: NewChain(FieldClassification,
			Strategy[[]string]{Name: ".cpc", Locator: css(".cpc"), Extract: allTexts(codeMaxLen)},
			Strategy[[]string]{Name: ".ipc", Locator: css(".ipc"), Extract: allTexts(codeMaxLen)},
			Strategy[[]string]{Name: "label:IPC", Locator: labelCell("IPC"), Extract: splitCodes(codeMaxLen)},
			Strategy[[]string]{Name: "label:CPC", Locator: labelCell("CPC"), Extract: splitCodes(codeMaxLen)},
		),
		PDFLink: NewChain(FieldPDFLink,
			Strategy[string]{Name: `a[href*="pdf"]`, Locator: css(`a[href*="pdf"]`), Extract: absoluteHref(baseURL)},
			Strategy[string]{Name: `a:has-text("PDF")`, Locator: interfaces.Locator{CSS: "a[href]", Contains: "PDF"}, Extract: absoluteHref(baseURL)},
		),
		Tabs: []TabStrategy{
			{Name: `a:has-text("National Phase")`, Locator: interfaces.Locator{CSS: "a", Contains: "National Phase"}},
			{Name: `button:has-text("National Phase")`, Locator: interfaces.Locator{CSS: "button", Contains: "National Phase"}},
			{Name: `li:has-text("National Phase")`, Locator: interfaces.Locator{CSS: "li", Contains: "National Phase"}},
			{Name: "#national-phase-tab", Locator: css("#national-phase-tab")},
			{Name: `a[href*="national"]`, Locator: css(`a[href*="national"]`)},
			{Name: `a:has-text("National")`, Locator: interfaces.Locator{CSS: "a", Contains: "National"}},
		},
		Rows: NewChain(FieldNationalRows,
			Strategy[[]interfaces.DOMNode]{Name: "table.national-phase-table tr", Locator: css("table.national-phase-table tr"), Extract: rowsWithBody},
			Strategy[[]interfaces.DOMNode]{Name: "div.national-phase tr", Locator: css("div.national-phase tr"), Extract: rowsWithBody},
			Strategy[[]interfaces.DOMNode]{Name: `table[id*="nationalPhase"] tr`, Locator: css(`table[id*="nationalPhase"] tr`), Extract: rowsWithBody},
			Strategy[[]interfaces.DOMNode]{Name: ".application-row", Locator: css(".application-row"), Extract: rowsWithBody},
			Strategy[[]interfaces.DOMNode]{Name: "table tr", Locator: css("table tr"), Extract: dataRows},
		),
	}
}

func css(selector string) interfaces.Locator {
	return interfaces.Locator{CSS: selector}
}

// labelCell addresses the value cell next to a label cell
func labelCell(label string) interfaces.Locator {
	return interfaces.Locator{CSS: "td", Contains: label, Next: "td"}
}

// labelRow addresses table rows mentioning label
func labelRow(label string) interfaces.Locator {
	return interfaces.Locator{CSS: "tr", Contains: label}
}

func firstText(minLen, maxLen int) func([]interfaces.DOMNode) (string, bool) {
	return func(nodes []interfaces.DOMNode) (string, bool) {
		for _, n := range nodes {
			text := n.Text()
			if len(text) < minLen || (maxLen > 0 && len(text) > maxLen) {
				continue
			}
			return text, true
		}
		return "", false
	}
}

func firstAttr(name string) func([]interfaces.DOMNode) (string, bool) {
	return func(nodes []interfaces.DOMNode) (string, bool) {
		for _, n := range nodes {
			if v, ok := n.Attr(name); ok {
				if v = normalizeSpace(v); v != "" {
					return v, true
				}
			}
		}
		return "", false
	}
}

func truncated(extract func([]interfaces.DOMNode) (string, bool), max int) func([]interfaces.DOMNode) (string, bool) {
	return func(nodes []interfaces.DOMNode) (string, bool) {
		text, ok := extract(nodes)
		if !ok {
			return "", false
		}
		if r := []rune(text); len(r) > max {
			text = string(r[:max])
		}
		return text, true
	}
}

// rowValue reads cell index from the first row that has it
func rowValue(index int) func([]interfaces.DOMNode) (string, bool) {
	return func(nodes []interfaces.DOMNode) (string, bool) {
		for _, row := range nodes {
			cells := row.QueryAll(css("td"))
			if len(cells) <= index {
				continue
			}
			if text := cells[index].Text(); text != "" {
				return text, true
			}
		}
		return "", false
	}
}

func rowList(maxLen int) func([]interfaces.DOMNode) ([]string, bool) {
	value := rowValue(1)
	return func(nodes []interfaces.DOMNode) ([]string, bool) {
		text, ok := value(nodes)
		if !ok {
			return nil, false
		}
		items := splitItems(text, maxLen)
		return items, len(items) > 0
	}
}

// rowDate takes the second cell of a label row, requiring at least eight
// characters and keeping the first ten
func rowDate() func([]interfaces.DOMNode) (string, bool) {
	value := rowValue(1)
	return func(nodes []interfaces.DOMNode) (string, bool) {
		for _, row := range nodes {
			text, ok := value([]interfaces.DOMNode{row})
			if !ok {
				continue
			}
			if d, ok := clipDate(text); ok {
				return d, true
			}
		}
		return "", false
	}
}

func dateText() func([]interfaces.DOMNode) (string, bool) {
	return func(nodes []interfaces.DOMNode) (string, bool) {
		for _, n := range nodes {
			if d, ok := clipDate(n.Text()); ok {
				return d, true
			}
		}
		return "", false
	}
}

func dateAttr(name string) func([]interfaces.DOMNode) (string, bool) {
	attr := firstAttr(name)
	return func(nodes []interfaces.DOMNode) (string, bool) {
		v, ok := attr(nodes)
		if !ok {
			return "", false
		}
		return clipDate(v)
	}
}

func clipDate(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if len(text) < 8 {
		return "", false
	}
	if len(text) > 10 {
		text = text[:10]
	}
	return strings.TrimSpace(text), true
}

func splitList(maxLen int) func([]interfaces.DOMNode) ([]string, bool) {
	return splitOn(listSeparators, maxLen)
}

// splitCodes keeps slashes, which are part of classification symbols
func splitCodes(maxLen int) func([]interfaces.DOMNode) ([]string, bool) {
	return splitOn(codeSeparators, maxLen)
}

func splitOn(separators *regexp.Regexp, maxLen int) func([]interfaces.DOMNode) ([]string, bool) {
	return func(nodes []interfaces.DOMNode) ([]string, bool) {
		var out []string
		seen := map[string]bool{}
		for _, n := range nodes {
			for _, item := range splitItemsOn(separators, n.Text(), maxLen) {
				if !seen[item] {
					seen[item] = true
					out = append(out, item)
				}
			}
		}
		return out, len(out) > 0
	}
}

// splitItems splits on ; , and / keeping items longer than two characters
func splitItems(text string, maxLen int) []string {
	return splitItemsOn(listSeparators, text, maxLen)
}

func splitItemsOn(separators *regexp.Regexp, text string, maxLen int) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range separators.Split(text, -1) {
		part = normalizeSpace(part)
		if len(part) < listItemMinLen || (maxLen > 0 && len(part) >= maxLen) || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

func allTexts(maxLen int) func([]interfaces.DOMNode) ([]string, bool) {
	return func(nodes []interfaces.DOMNode) ([]string, bool) {
		var out []string
		seen := map[string]bool{}
		for _, n := range nodes {
			text := n.Text()
			if text == "" || len(text) >= maxLen || seen[text] {
				continue
			}
			seen[text] = true
			out = append(out, text)
		}
		return out, len(out) > 0
	}
}

func absoluteHref(baseURL string) func([]interfaces.DOMNode) (string, bool) {
	base, _ := url.Parse(baseURL)
	return func(nodes []interfaces.DOMNode) (string, bool) {
		for _, n := range nodes {
			href, ok := n.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				continue
			}
			if base != nil && !ref.IsAbs() {
				ref = base.ResolveReference(ref)
			}
			return ref.String(), true
		}
		return "", false
	}
}

// rowsWithBody accepts a row set only when it has more than the header row
func rowsWithBody(nodes []interfaces.DOMNode) ([]interfaces.DOMNode, bool) {
	if len(nodes) <= 1 {
		return nil, false
	}
	return nodes, true
}

// dataRows is rowsWithBody for generic selectors: at least one row must have
// three or more cells, which keeps two-column bibliographic tables out.
func dataRows(nodes []interfaces.DOMNode) ([]interfaces.DOMNode, bool) {
	rows, ok := rowsWithBody(nodes)
	if !ok {
		return nil, false
	}
	for _, row := range rows {
		if len(row.QueryAll(css("td"))) >= 3 {
			return rows, true
		}
	}
	return nil, false
}
