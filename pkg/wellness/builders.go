package wellness

import (
	"strings"
	"time"

	"github.com/carelink-health/wellness-import/pkg/fhir"
)

// Resource payload builders. Each builds the full representation the record
// store should hold after this submission; passing an id turns the payload
// into an update.

const (
	relationshipSystem = "https://fhir.carelink.health/StructureDefinitions/relationship"
	visitDuration      = 15 * time.Minute
)

func patientResource(rec *WellnessRecord, id string) fhir.Patient {
	var telecom []fhir.ContactPoint
	if rec.Phone != "" {
		telecom = append(telecom, fhir.ContactPoint{System: "phone", Value: rec.Phone, Rank: 1})
	}
	if rec.Email != "" {
		telecom = append(telecom, fhir.ContactPoint{System: "email", Value: rec.Email, Rank: 1})
	}

	return fhir.Patient{
		ResourceType: "Patient",
		ID:           id,
		Active:       true,
		Name: []fhir.HumanName{{
			Use:    "official",
			Given:  []string{rec.FirstName},
			Family: rec.LastName,
		}},
		Gender:    strings.ToLower(rec.Sex),
		BirthDate: rec.DOB,
		Telecom:   telecom,
		Address: []fhir.Address{{
			Use:        "home",
			Line:       addressLines(rec),
			City:       rec.City,
			State:      rec.State,
			PostalCode: string(rec.Zip),
			Country:    "USA",
		}},
	}
}

func addressLines(rec *WellnessRecord) []string {
	var lines []string
	for _, line := range []string{rec.Address, rec.Address2} {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func relatedPersonResource(rec *WellnessRecord, patientID, id string) fhir.RelatedPerson {
	var telecom []fhir.ContactPoint
	if rec.Phone != "" {
		telecom = append(telecom,
			fhir.ContactPoint{System: "phone", Value: rec.Phone},
			fhir.ContactPoint{System: "sms", Value: rec.Phone},
		)
	}
	if rec.Email != "" {
		telecom = append(telecom, fhir.ContactPoint{System: "email", Value: rec.Email})
	}

	return fhir.RelatedPerson{
		ResourceType: "RelatedPerson",
		ID:           id,
		Active:       true,
		Patient:      fhir.Reference{Reference: "Patient/" + patientID},
		Telecom:      telecom,
		Relationship: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: relationshipSystem, Code: "user-relatedperson"}},
		}},
	}
}

func personResource(rec *WellnessRecord, relatedPersonID, id string) fhir.Person {
	var telecom []fhir.ContactPoint
	if rec.Phone != "" {
		telecom = append(telecom, fhir.ContactPoint{System: "phone", Value: normalizePhone(rec.Phone)})
	}
	if rec.Email != "" {
		telecom = append(telecom, fhir.ContactPoint{System: "email", Value: rec.Email})
	}

	return fhir.Person{
		ResourceType: "Person",
		ID:           id,
		Telecom:      telecom,
		Link: []fhir.PersonLink{{
			Target: fhir.Reference{Type: "RelatedPerson", Reference: "RelatedPerson/" + relatedPersonID},
		}},
	}
}

// normalizePhone strips formatting and prefixes the US country code.
func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return "+1" + digits.String()
}

// mergePersonTelecom folds the inbound contact points into an existing
// person, deduplicated by system+value. The existing entries keep their
// position.
func mergePersonTelecom(existing fhir.Person, incoming fhir.Person) fhir.Person {
	seen := make(map[[2]string]struct{}, len(existing.Telecom))
	merged := make([]fhir.ContactPoint, 0, len(existing.Telecom)+len(incoming.Telecom))

	for _, cp := range append(append([]fhir.ContactPoint{}, existing.Telecom...), incoming.Telecom...) {
		if cp.Value == "" {
			continue
		}
		k := [2]string{cp.System, cp.Value}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, cp)
	}

	existing.Telecom = merged
	return existing
}

func appointmentResource(rec *WellnessRecord, patientID, locationID, id string) fhir.Appointment {
	start, end := visitPeriod(rec)

	return fhir.Appointment{
		ResourceType: "Appointment",
		ID:           id,
		Meta:         &fhir.Meta{Tag: []fhir.Coding{{Code: "WELLNESS-IMPORT"}}},
		Identifier:   []fhir.Identifier{{Value: rec.OrderID}},
		Status:       "fulfilled",
		ServiceType: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System:  "http://terminology.hl7.org/CodeSystem/service-type",
				Code:    "in-person",
				Display: "in-person",
			}},
			Text: "in-person",
		}},
		AppointmentType: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  "http://terminology.hl7.org/CodeSystem/v2-0276",
				Code:    "now",
				Display: "now",
			}},
			Text: "now",
		},
		Start:   start,
		End:     end,
		Created: rec.CreatedAt,
		Participant: []fhir.AppointmentParticipant{
			{Actor: fhir.Reference{Reference: "Patient/" + patientID}, Status: "accepted"},
			{Actor: fhir.Reference{Reference: "Location/" + locationID}, Status: "accepted"},
		},
	}
}

func encounterResource(rec *WellnessRecord, patientID, appointmentID, locationID, id string) fhir.Encounter {
	start, end := visitPeriod(rec)

	return fhir.Encounter{
		ResourceType: "Encounter",
		ID:           id,
		Status:       "finished",
		Class: &fhir.Coding{
			System:  "http://terminology.hl7.org/CodeSystem/v3-ActCode",
			Code:    "FLD",
			Display: "field",
		},
		Subject:     &fhir.Reference{Type: "Patient", Reference: "Patient/" + patientID},
		Appointment: []fhir.Reference{{Reference: "Appointment/" + appointmentID}},
		Period:      &fhir.Period{Start: start},
		Location: []fhir.EncounterLocation{{
			Location: fhir.Reference{Reference: "Location/" + locationID},
			Status:   "completed",
			Period:   &fhir.Period{Start: start, End: end},
		}},
	}
}

// patientIDFromAppointment extracts the patient participant's id, if any.
func patientIDFromAppointment(appointment *fhir.Appointment) string {
	if appointment == nil {
		return ""
	}
	for _, participant := range appointment.Participant {
		if rest, ok := strings.CutPrefix(participant.Actor.Reference, "Patient/"); ok {
			return rest
		}
	}
	return ""
}

// visitPeriod derives the screening event window from the test date. An
// unparseable date falls back to the current time.
func visitPeriod(rec *WellnessRecord) (start, end string) {
	t, ok := parseEventTime(rec.TestDate)
	if !ok {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339), t.UTC().Add(visitDuration).Format(time.RFC3339)
}

func parseEventTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
