package clinicaltrials

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func studyJSON(i int) string {
	phases := `["PHASE3"]`
	status := "COMPLETED"
	switch {
	case i%3 == 1:
		phases = `["PHASE1","PHASE2"]`
		status = "RECRUITING"
	case i%3 == 2:
		phases = `[]`
		status = ""
	}
	sponsor := "Bayer"
	if i%2 == 1 {
		sponsor = "Orion Corporation, Orion Pharma"
	}
	return fmt.Sprintf(`{"protocolSection":{
		"identificationModule":{"nctId":"NCT%08d","briefTitle":"Study %d"},
		"statusModule":{"overallStatus":%q,"startDateStruct":{"date":"2019-0%d"},"enrollmentInfo":{"count":%d}},
		"designModule":{"phases":%s},
		"sponsorCollaboratorsModule":{"leadSponsor":{"name":%q}},
		"contactsLocationsModule":{"locations":[{"country":"Finland"},{"country":"Brazil"},{"country":"Finland"}]}}}`,
		i, i, status, 1+i%9, 100+i, phases, sponsor)
}

func TestClient_Trials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/studies", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
		if r.URL.Query().Get("query.term") != "darolutamide" {
			_, _ = w.Write([]byte(`{"studies":[]}`))
			return
		}
		studies := make([]string, 0, 25)
		for i := 0; i < 25; i++ {
			studies = append(studies, studyJSON(i))
		}
		fmt.Fprintf(w, `{"studies":[%s],"nextPageToken":"abc"}`, strings.Join(studies, ","))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithLogger(arbor.NewLogger()), WithRateLimit(100))

	payload, err := client.Trials(context.Background(), "darolutamide")
	require.NoError(t, err)

	assert.Equal(t, 25, payload.Total)
	require.Len(t, payload.Trials, maxDetailed)

	// Studies 0..19: i%3 == 0 → 7, == 1 → 7, == 2 → 6
	assert.Equal(t, map[string]int{"PHASE3": 7, "PHASE1": 7, "Unknown": 6}, payload.ByPhase)
	assert.Equal(t, map[string]int{"COMPLETED": 7, "RECRUITING": 7, "Unknown": 6}, payload.ByStatus)
	assert.Equal(t, []string{"Bayer", "Orion Corporation, Orion Pharma"}, payload.Sponsors)
	assert.Equal(t, []string{"Brazil", "Finland"}, payload.Countries)

	first := payload.Trials[0]
	assert.Equal(t, "NCT00000000", first.NCTID)
	assert.Equal(t, []string{"Finland", "Brazil"}, first.Countries)
	assert.Equal(t, 100, first.Enrollment)
	assert.Equal(t, []string{"PHASE1", "PHASE2"}, payload.Trials[1].Phases)
	assert.Equal(t, []string{}, payload.Trials[2].Phases)

	empty, err := client.Trials(context.Background(), "unobtainium")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.Trials)
}
