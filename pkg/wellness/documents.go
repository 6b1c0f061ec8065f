package wellness

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carelink-health/wellness-import/pkg/fhir"
)

const (
	pdfBucketSuffix = "-wellness-pdfs"
	pdfKeyPrefix    = "wellness-pdf-"

	documentCategorySystem = "https://fhir.carelink.health/StructureDefinitions/document-category"
)

// DocumentStore persists result documents and assembles their
// DocumentReference payloads.
type DocumentStore struct {
	objects   ObjectStore
	projectID string
	defaults  DocumentDefaults
}

func NewDocumentStore(objects ObjectStore, projectID string, defaults DocumentDefaults) *DocumentStore {
	return &DocumentStore{objects: objects, projectID: projectID, defaults: defaults}
}

// UploadPDF stores the decoded payload under the order's key. Re-submissions
// with differing content get the next unused version suffix; the unsuffixed
// base object counts as version 1, so the first suffixed upload is -v2.
func (s *DocumentStore) UploadPDF(ctx context.Context, orderID, content string) (string, error) {
	bucket := s.projectID + pdfBucketSuffix
	baseKey := fmt.Sprintf("%s%s.pdf", pdfKeyPrefix, orderID)

	keys, err := s.objects.List(ctx, bucket, pdfKeyPrefix+orderID)
	if err != nil {
		return "", fmt.Errorf("listing stored documents for order %s: %w", orderID, err)
	}

	objectKey := baseKey
	if next := nextVersion(keys, orderID); next > 1 {
		objectKey = fmt.Sprintf("%s%s-v%d.pdf", pdfKeyPrefix, orderID, next)
	}

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("decoding document payload for order %s: %w", orderID, err)
	}

	if err := s.objects.Upload(ctx, bucket, objectKey, "application/pdf", raw); err != nil {
		return "", err
	}
	return blobURLPrefix + bucket + "/" + objectKey, nil
}

func nextVersion(keys []string, orderID string) int {
	pattern := regexp.MustCompile(pdfKeyPrefix + regexp.QuoteMeta(orderID) + `(?:-v(\d+))?\.pdf$`)

	highest := 0
	for _, key := range keys {
		match := pattern.FindStringSubmatch(key)
		if match == nil {
			continue
		}
		version := 1
		if match[1] != "" {
			if v, err := strconv.Atoi(match[1]); err == nil {
				version = v
			}
		}
		if version > highest {
			highest = version
		}
	}

	if highest == 0 {
		return 1
	}
	return highest + 1
}

// BuildReference assembles the DocumentReference for an uploaded document,
// applying configured defaults for feed-omitted metadata.
func (s *DocumentStore) BuildReference(meta DocMeta, url, patientID, practitionerID, encounterID, id string) fhir.DocumentReference {
	loinc := meta.LOINC
	if loinc == "" {
		loinc = s.defaults.LOINC
	}

	display := meta.DisplayTitle
	if display == "" {
		display = s.defaults.DisplayTitle
	}

	categoryCode := strings.ToLower(meta.Category)
	if categoryCode == "" {
		categoryCode = s.defaults.CategoryCode
	}
	categoryDisplay := strings.ToUpper(categoryCode[:1]) + categoryCode[1:]

	date := normalizeDocumentDate(meta.Date)

	title := meta.Title
	if title == "" {
		title = display
		if t, ok := parseEventTime(meta.Date); ok {
			title = display + " - " + t.Format("Jan 2, 2006")
		}
	}

	return fhir.DocumentReference{
		ResourceType: "DocumentReference",
		ID:           id,
		Status:       "current",
		Type: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: "http://loinc.org", Code: loinc, Display: display}},
			Text:   display,
		},
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: documentCategorySystem, Code: categoryCode, Display: categoryDisplay}},
			Text:   categoryDisplay,
		}},
		Date:    date,
		Subject: &fhir.Reference{Reference: "Patient/" + patientID},
		Author:  []fhir.Reference{{Reference: "Practitioner/" + practitionerID}},
		Context: &fhir.DocumentContext{Encounter: []fhir.Reference{{Reference: "Encounter/" + encounterID}}},
		Content: []fhir.DocumentContent{{
			Attachment: fhir.Attachment{ContentType: "application/pdf", URL: url, Title: title},
		}},
	}
}

func normalizeDocumentDate(value string) string {
	if value == "" {
		return ""
	}
	t, ok := parseEventTime(value)
	if !ok {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}
