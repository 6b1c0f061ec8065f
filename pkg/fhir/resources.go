// Package fhir is a thin typed gateway to the clinical record store. It
// builds requests and decodes resources; reconciliation decisions live in
// pkg/wellness.
package fhir

import "encoding/json"

type Meta struct {
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Tag         []Coding `json:"tag,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
}

type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Rank   int    `json:"rank,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Given  []string `json:"given,omitempty"`
	Family string   `json:"family,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Patient struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id,omitempty"`
	Meta         *Meta            `json:"meta,omitempty"`
	Active       bool             `json:"active,omitempty"`
	Name         []HumanName      `json:"name,omitempty"`
	Gender       string           `json:"gender,omitempty"`
	BirthDate    string           `json:"birthDate,omitempty"`
	Telecom      []ContactPoint   `json:"telecom,omitempty"`
	Address      []Address        `json:"address,omitempty"`
	Contact      []PatientContact `json:"contact,omitempty"`
}

type PatientContact struct {
	Name         *HumanName        `json:"name,omitempty"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
	Relationship []CodeableConcept `json:"relationship,omitempty"`
}

type RelatedPerson struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Meta         *Meta             `json:"meta,omitempty"`
	Active       bool              `json:"active,omitempty"`
	Patient      Reference         `json:"patient"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
	Relationship []CodeableConcept `json:"relationship,omitempty"`
}

type Person struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Link         []PersonLink   `json:"link,omitempty"`
}

type PersonLink struct {
	Target Reference `json:"target"`
}

type Practitioner struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
}

type Appointment struct {
	ResourceType    string                   `json:"resourceType"`
	ID              string                   `json:"id,omitempty"`
	Meta            *Meta                    `json:"meta,omitempty"`
	Identifier      []Identifier             `json:"identifier,omitempty"`
	Status          string                   `json:"status,omitempty"`
	ServiceType     []CodeableConcept        `json:"serviceType,omitempty"`
	AppointmentType *CodeableConcept         `json:"appointmentType,omitempty"`
	Start           string                   `json:"start,omitempty"`
	End             string                   `json:"end,omitempty"`
	Created         string                   `json:"created,omitempty"`
	Participant     []AppointmentParticipant `json:"participant,omitempty"`
}

type AppointmentParticipant struct {
	Actor  Reference `json:"actor"`
	Status string    `json:"status,omitempty"`
}

type Encounter struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id,omitempty"`
	Meta         *Meta               `json:"meta,omitempty"`
	Status       string              `json:"status,omitempty"`
	Class        *Coding             `json:"class,omitempty"`
	Subject      *Reference          `json:"subject,omitempty"`
	Appointment  []Reference         `json:"appointment,omitempty"`
	Period       *Period             `json:"period,omitempty"`
	Location     []EncounterLocation `json:"location,omitempty"`
}

type EncounterLocation struct {
	Location Reference `json:"location"`
	Status   string    `json:"status,omitempty"`
	Period   *Period   `json:"period,omitempty"`
}

type DocumentReference struct {
	ResourceType string             `json:"resourceType"`
	ID           string             `json:"id,omitempty"`
	Meta         *Meta              `json:"meta,omitempty"`
	Status       string             `json:"status,omitempty"`
	Type         *CodeableConcept   `json:"type,omitempty"`
	Category     []CodeableConcept  `json:"category,omitempty"`
	Date         string             `json:"date,omitempty"`
	Subject      *Reference         `json:"subject,omitempty"`
	Author       []Reference        `json:"author,omitempty"`
	Context      *DocumentContext   `json:"context,omitempty"`
	Content      []DocumentContent  `json:"content,omitempty"`
}

type DocumentContext struct {
	Encounter []Reference `json:"encounter,omitempty"`
}

type DocumentContent struct {
	Attachment Attachment `json:"attachment"`
}

type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
	Data        string `json:"data,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Bundle is a search response. Entries hold heterogeneous resources when the
// search used _include/_revinclude, so they stay raw until unbundled by type.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Total        int           `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

func unbundle[T any](b *Bundle, resourceType string) []T {
	var out []T
	for _, entry := range b.Entry {
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil || probe.ResourceType != resourceType {
			continue
		}
		var resource T
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			continue
		}
		out = append(out, resource)
	}
	return out
}

func first[T any](items []T) *T {
	if len(items) == 0 {
		return nil
	}
	return &items[0]
}
