package pubchem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/httpclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL), WithLogger(arbor.NewLogger()), WithRateLimit(100))
}

func TestClient_Resolve(t *testing.T) {
	synonyms := []string{"darolutamide", "1297538-32-9", "ODM-201", "BAY-1841788", "Nubeqa", "BAY1841788", "UNII-X05U0N2RCO"}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/compound/name/darolutamide/synonyms/JSON"):
			quoted := make([]string, len(synonyms))
			for i, s := range synonyms {
				quoted[i] = fmt.Sprintf("%q", s)
			}
			fmt.Fprintf(w, `{"InformationList":{"Information":[{"CID":67171867,"Synonym":[%s]}]}}`, strings.Join(quoted, ","))
		case strings.Contains(r.URL.Path, "/property/"):
			_, _ = w.Write([]byte(`{"PropertyTable":{"Properties":[{"CID":67171867,"MolecularFormula":"C19H19ClN6O2","MolecularWeight":"398.8","IUPACName":"N-[(2S)-1-[3-(3-chloro-4-cyanophenyl)pyrazol-1-yl]propan-2-yl]-5-(1-hydroxyethyl)-1H-pyrazole-3-carboxamide","SMILES":"CC(CN1C=CC(=N1)C2=CC(=C(C=C2)C#N)Cl)NC(=O)C3=NNC(=C3)C(C)O","InChIKey":"BLIJXOOIHRSQRB-PXYINDEMSA-N"}]}}`))
		default:
			http.NotFound(w, r)
		}
	})

	payload, err := client.Resolve(context.Background(), " darolutamide ")
	require.NoError(t, err)

	assert.Equal(t, 67171867, payload.CID)
	assert.Equal(t, synonyms, payload.Synonyms)
	assert.Equal(t, len(synonyms), payload.TotalRecords)
	assert.Equal(t, []string{"ODM-201", "BAY-1841788", "BAY1841788"}, payload.DevCodes)
	assert.Equal(t, "1297538-32-9", payload.CAS)
	assert.Equal(t, "C19H19ClN6O2", payload.Formula)
	assert.Equal(t, "398.8", payload.Weight)
	assert.True(t, strings.HasPrefix(payload.SMILES, "CC(CN1"), "falls back to the SMILES field")
	assert.Equal(t, "BLIJXOOIHRSQRB-PXYINDEMSA-N", payload.InChIKey)
}

func TestClient_ResolveNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"Fault":{"Code":"PUGREST.NotFound"}}`, http.StatusNotFound)
	})

	_, err := client.Resolve(context.Background(), "unobtainium")
	assert.ErrorIs(t, err, httpclient.ErrNotFound)
}

func TestClient_ResolveWithoutProperties(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/property/") {
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"InformationList":{"Information":[{"CID":42,"Synonym":["aspirin","50-78-2"]}]}}`))
	})

	payload, err := client.Resolve(context.Background(), "aspirin")
	require.NoError(t, err)
	assert.Equal(t, 42, payload.CID)
	assert.Equal(t, "50-78-2", payload.CAS)
	assert.Empty(t, payload.Formula)
	assert.Empty(t, payload.DevCodes)
}

func TestClassifySynonyms(t *testing.T) {
	many := make([]string, 0, 130)
	for i := 0; i < 130; i++ {
		many = append(many, fmt.Sprintf("ABC-%04d", 1000+i))
	}
	devCodes, cas := classifySynonyms(many)
	assert.Len(t, devCodes, maxDevCodes)
	assert.Empty(t, cas)

	late := append(make([]string, 0, 101), many[:100]...)
	late = append(late, "1297538-32-9")
	_, cas = classifySynonyms(late)
	assert.Empty(t, cas, "only the leading synonyms are examined")

	tests := []struct {
		synonym string
		devCode bool
	}{
		{synonym: "ODM-201", devCode: true},
		{synonym: "odm201", devCode: true},
		{synonym: "BAY1841788A", devCode: true},
		{synonym: "X-12", devCode: false},
		{synonym: "darolutamide", devCode: false},
		{synonym: "ABCDEF-123", devCode: false},
	}
	for _, tt := range tests {
		t.Run(tt.synonym, func(t *testing.T) {
			assert.Equal(t, tt.devCode, devCodePattern.MatchString(tt.synonym))
		})
	}
}

func TestFlexString(t *testing.T) {
	var p compoundProperties
	require.NoError(t, json.Unmarshal([]byte(`{"MolecularWeight":180.16}`), &p))
	assert.Equal(t, flexString("180.16"), p.MolecularWeight)
	require.NoError(t, json.Unmarshal([]byte(`{"MolecularWeight":"398.8"}`), &p))
	assert.Equal(t, flexString("398.8"), p.MolecularWeight)
}
