package crawler

import (
	"fmt"
	"strings"
)

const detailBody = `
<h3 class="tab_title">Substituted pyrazole compounds as androgen receptor modulators</h3>
<div class="abstract">Compounds of formula (I) useful in the treatment of androgen receptor dependent conditions.</div>
<table class="biblio">
	<tr><td>Applicants</td><td>ORION CORPORATION</td></tr>
	<tr><td>Inventors</td><td>Gerd WOHLFAHRT; Olli TORMAKANGAS</td></tr>
	<tr><td>International Filing Date</td><td>14.04.2016</td></tr>
	<tr><td>Publication Date</td><td>20.10.2016</td></tr>
	<tr><td>Priority Data</td><td>15.04.2015 FI 20155285</td></tr>
	<tr><td>IPC</td><td>C07D 231/12; A61K 31/415</td></tr>
</table>
<a href="/search/docs/WO2016168716.pdf">Download PDF</a>
<ul class="tabs"><li><a href="#national">National Phase</a></li></ul>
`

// detailPage is the detail page before the national phase tab is opened
func detailPage() string {
	return "<html><head><title>WO2016168716</title></head><body>" + detailBody + "</body></html>"
}

// detailPageWithTable is the page after the tab revealed the table
func detailPageWithTable(rows ...string) string {
	return "<html><body>" + detailBody + nationalPhaseTable(rows...) + "</body></html>"
}

// emptyPage has no recognisable field at all
func emptyPage() string {
	return "<html><body><p>Service temporarily unavailable</p></body></html>"
}

func nationalPhaseTable(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="national-phase"><table class="national-phase-table">`)
	b.WriteString(`<tr><th>Office</th><th>Entry Date</th><th>National Number</th><th>National Status</th></tr>`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</table></div>`)
	return b.String()
}

func row(cells ...string) string {
	return "<tr><td>" + strings.Join(cells, "</td><td>") + "</td></tr>"
}

var seventyRowOffices = []string{
	"Brazil", "United States of America", "EP", "Japan", "China",
	"Republic of Korea (KR)", "CA", "Australia", "IN", "Mexico",
}

var seventyRowStatuses = []string{"Granted", "Pending", "Withdrawn", "National phase entered", "In force"}

// seventyRows returns 70 well-formed rows over filing years 2016-2019 and
// the number of rows per year
func seventyRows() ([]string, map[string]int) {
	rows := make([]string, 0, 70)
	perYear := map[string]int{}
	for i := 0; i < 70; i++ {
		year := 2016 + i%4
		var date string
		switch i % 3 {
		case 0:
			date = fmt.Sprintf("%02d.%02d.%d", 1+i%28, 1+i%12, year)
		case 1:
			date = fmt.Sprintf("%d-%02d-%02d", year, 1+i%12, 1+i%28)
		default:
			date = fmt.Sprintf("%02d/%02d/%d", 1+i%28, 1+i%12, year)
		}
		office := seventyRowOffices[i%len(seventyRowOffices)]
		rows = append(rows, row(office, date, fmt.Sprintf("APP-%04d", i), seventyRowStatuses[i%len(seventyRowStatuses)]))
		perYear[fmt.Sprint(year)]++
	}
	return rows, perYear
}
