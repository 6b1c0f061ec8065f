package fhir

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/carelink-health/wellness-import/pkg/common/auth"
)

// Client talks to the record store's FHIR API. Searches that return multiple
// matches resolve to the first entry; search keys are not proven unique.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, projectID string, hc *http.Client, tokens auth.TokenProvider) *Client {
	client := resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if projectID != "" {
		client.SetHeader("x-project-id", projectID)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token, err := tokens.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
		return nil
	})

	return &Client{http: client}
}

func (c *Client) search(ctx context.Context, resourceType string, params map[string]string) (*Bundle, error) {
	var bundle Bundle
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&bundle).
		Get("/" + resourceType)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", resourceType, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("searching %s: record store returned %s", resourceType, resp.Status())
	}
	return &bundle, nil
}

func create[T any](ctx context.Context, c *Client, resourceType string, resource T) (*T, error) {
	var created T
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(resource).
		SetResult(&created).
		Post("/" + resourceType)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", resourceType, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("creating %s: record store returned %s", resourceType, resp.Status())
	}
	return &created, nil
}

func update[T any](ctx context.Context, c *Client, resourceType, id string, resource T) (*T, error) {
	if id == "" {
		return nil, fmt.Errorf("updating %s: missing resource id", resourceType)
	}
	var updated T
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(resource).
		SetResult(&updated).
		Put(fmt.Sprintf("/%s/%s", resourceType, id))
	if err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", resourceType, id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("updating %s/%s: record store returned %s", resourceType, id, resp.Status())
	}
	return &updated, nil
}

func (c *Client) PractitionerByName(ctx context.Context, given, family string) (*Practitioner, error) {
	bundle, err := c.search(ctx, "Practitioner", map[string]string{
		"given":  given,
		"family": family,
	})
	if err != nil {
		return nil, err
	}
	return first(unbundle[Practitioner](bundle, "Practitioner")), nil
}

func (c *Client) PatientByDemographics(ctx context.Context, birthDate, postalCode, given, family string) (*Patient, error) {
	bundle, err := c.search(ctx, "Patient", map[string]string{
		"birthdate":          birthDate,
		"address-postalcode": postalCode,
		"given":              given,
		"family":             family,
	})
	if err != nil {
		return nil, err
	}
	return first(unbundle[Patient](bundle, "Patient")), nil
}

func (c *Client) RelatedPersonByPatient(ctx context.Context, patientID string) (*RelatedPerson, error) {
	bundle, err := c.search(ctx, "RelatedPerson", map[string]string{
		"patient": "Patient/" + patientID,
	})
	if err != nil {
		return nil, err
	}
	return first(unbundle[RelatedPerson](bundle, "RelatedPerson")), nil
}

func (c *Client) PersonByRelatedPerson(ctx context.Context, relatedPersonID string) (*Person, error) {
	bundle, err := c.search(ctx, "Person", map[string]string{
		"link": "RelatedPerson/" + relatedPersonID,
	})
	if err != nil {
		return nil, err
	}
	return first(unbundle[Person](bundle, "Person")), nil
}

func (c *Client) AppointmentByIdentifier(ctx context.Context, identifier string) (*Appointment, error) {
	bundle, err := c.search(ctx, "Appointment", map[string]string{
		"identifier": identifier,
	})
	if err != nil {
		return nil, err
	}
	return first(unbundle[Appointment](bundle, "Appointment")), nil
}

// EncounterWithPatient fetches the encounter hanging off an appointment and,
// via _include, the patient it is about.
func (c *Client) EncounterWithPatient(ctx context.Context, appointmentID string) (*Encounter, *Patient, error) {
	bundle, err := c.search(ctx, "Encounter", map[string]string{
		"appointment": "Appointment/" + appointmentID,
		"_include":    "Encounter:subject",
	})
	if err != nil {
		return nil, nil, err
	}
	return first(unbundle[Encounter](bundle, "Encounter")), first(unbundle[Patient](bundle, "Patient")), nil
}

// PersonWithRelatedPerson fetches the related person for a patient and, via
// _revinclude, the person linking to it.
func (c *Client) PersonWithRelatedPerson(ctx context.Context, patientID string) (*Person, *RelatedPerson, error) {
	bundle, err := c.search(ctx, "RelatedPerson", map[string]string{
		"patient":             "Patient/" + patientID,
		"_revinclude:iterate": "Person:link",
	})
	if err != nil {
		return nil, nil, err
	}
	return first(unbundle[Person](bundle, "Person")), first(unbundle[RelatedPerson](bundle, "RelatedPerson")), nil
}

func (c *Client) DocumentsByEncounter(ctx context.Context, encounterID string) ([]DocumentReference, error) {
	bundle, err := c.search(ctx, "DocumentReference", map[string]string{
		"encounter": "Encounter/" + encounterID,
	})
	if err != nil {
		return nil, err
	}
	return unbundle[DocumentReference](bundle, "DocumentReference"), nil
}

func (c *Client) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	return create(ctx, c, "Patient", p)
}

func (c *Client) UpdatePatient(ctx context.Context, p Patient) (*Patient, error) {
	return update(ctx, c, "Patient", p.ID, p)
}

func (c *Client) CreateRelatedPerson(ctx context.Context, rp RelatedPerson) (*RelatedPerson, error) {
	return create(ctx, c, "RelatedPerson", rp)
}

func (c *Client) UpdateRelatedPerson(ctx context.Context, rp RelatedPerson) (*RelatedPerson, error) {
	return update(ctx, c, "RelatedPerson", rp.ID, rp)
}

func (c *Client) CreatePerson(ctx context.Context, p Person) (*Person, error) {
	return create(ctx, c, "Person", p)
}

func (c *Client) UpdatePerson(ctx context.Context, p Person) (*Person, error) {
	return update(ctx, c, "Person", p.ID, p)
}

func (c *Client) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	return create(ctx, c, "Appointment", a)
}

func (c *Client) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	return update(ctx, c, "Appointment", a.ID, a)
}

func (c *Client) CreateEncounter(ctx context.Context, e Encounter) (*Encounter, error) {
	return create(ctx, c, "Encounter", e)
}

func (c *Client) UpdateEncounter(ctx context.Context, e Encounter) (*Encounter, error) {
	return update(ctx, c, "Encounter", e.ID, e)
}

func (c *Client) CreateDocumentReference(ctx context.Context, d DocumentReference) (*DocumentReference, error) {
	return create(ctx, c, "DocumentReference", d)
}

func (c *Client) UpdateDocumentReference(ctx context.Context, d DocumentReference) (*DocumentReference, error) {
	return update(ctx, c, "DocumentReference", d.ID, d)
}
