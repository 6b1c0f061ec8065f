package wellness

import (
	"bytes"
	"encoding/json"
)

// FlexString tolerates upstream feeds that send a field as either a JSON
// string or a bare number (zip codes in particular).
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	*s = FlexString(data)
	return nil
}

// WellnessRecord is one externally submitted screening result. It exists only
// for the duration of one reconciliation run.
type WellnessRecord struct {
	OrderID    string `json:"order_id"`
	LocationID string `json:"location_id"`

	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	DOB       string     `json:"dob,omitempty"`
	Zip       FlexString `json:"zip,omitempty"`
	Sex       string     `json:"sex,omitempty"`
	Address   string     `json:"address,omitempty"`
	Address2  string     `json:"address2,omitempty"`
	City      string     `json:"city,omitempty"`
	State     string     `json:"state,omitempty"`

	ApprovedBy string `json:"approved_by,omitempty"`

	TestDate       string `json:"test_date,omitempty"`
	CollectionDate string `json:"collection_date,omitempty"`
	FinalizedAt    string `json:"finalized_at,omitempty"`
	SubmittedAt    string `json:"submitted_at,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`

	// Document payload, base64-encoded.
	PDFContent string `json:"pdfContent,omitempty"`

	// Document metadata. The feed historically misspells loinc as ioinc;
	// both are accepted, loinc wins.
	LOINC        string `json:"loinc,omitempty"`
	IOINC        string `json:"ioinc,omitempty"`
	DisplayTitle string `json:"displayTitle,omitempty"`
	Category     string `json:"category,omitempty"`
	DocTitle     string `json:"doc_title,omitempty"`
}

// DocMeta is the document metadata derived from an inbound record, before
// defaults are applied.
type DocMeta struct {
	LOINC        string
	DisplayTitle string
	Category     string
	Date         string
	Title        string
}

// DocumentMeta derives metadata for the result document. The date prefers the
// most authoritative timestamp the feed provides.
func (r *WellnessRecord) DocumentMeta() DocMeta {
	loinc := r.LOINC
	if loinc == "" {
		loinc = r.IOINC
	}

	date := r.FinalizedAt
	for _, candidate := range []string{r.TestDate, r.CollectionDate, r.SubmittedAt, r.CreatedAt} {
		if date != "" {
			break
		}
		date = candidate
	}

	return DocMeta{
		LOINC:        loinc,
		DisplayTitle: r.DisplayTitle,
		Category:     r.Category,
		Date:         date,
		Title:        r.DocTitle,
	}
}
