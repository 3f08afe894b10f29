package pubchem

import (
	"bytes"
	"encoding/json"
)

type synonymsResponse struct {
	InformationList struct {
		Information []struct {
			CID     int      `json:"CID"`
			Synonym []string `json:"Synonym"`
		} `json:"Information"`
	} `json:"InformationList"`
}

type propertiesResponse struct {
	PropertyTable struct {
		Properties []compoundProperties `json:"Properties"`
	} `json:"PropertyTable"`
}

type compoundProperties struct {
	CID              int        `json:"CID"`
	MolecularFormula string     `json:"MolecularFormula"`
	MolecularWeight  flexString `json:"MolecularWeight"`
	IUPACName        string     `json:"IUPACName"`
	CanonicalSMILES  string     `json:"CanonicalSMILES"`
	SMILES           string     `json:"SMILES"`
	InChI            string     `json:"InChI"`
	InChIKey         string     `json:"InChIKey"`
}

// flexString accepts a JSON string or number. Older responses carry the
// molecular weight as a number, newer ones as a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
