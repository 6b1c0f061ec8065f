package wellness

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/carelink-health/wellness-import/pkg/common/logger"
	"github.com/carelink-health/wellness-import/pkg/identity"
)

const patientRoleName = "Patient"

// accountDecision is the account step for an unseen order, a function of
// {user exists, email valid, phone valid, patient exists}.
type accountDecision int

const (
	accountSkip accountDecision = iota
	accountInvite
	accountBindExisting
	accountCreatePatientOnly
)

func resolveAccountAction(userExists, emailValid, phoneValid, patientExists bool) accountDecision {
	switch {
	case !userExists && emailValid:
		return accountInvite
	case userExists:
		return accountBindExisting
	case phoneValid && !patientExists:
		return accountCreatePatientOnly
	default:
		return accountSkip
	}
}

// Service is the reconciliation orchestrator. Given one inbound record it
// decides what to create or update across the entity graph, in dependency
// order, and records the outcome in the audit log.
type Service struct {
	store       RecordStore
	directory   Directory
	validator   *Validator
	resolver    *Resolver
	dedup       *Deduper
	documents   *DocumentStore
	audit       *AuditLog
	appClientID string
}

func NewService(store RecordStore, directory Directory, objects ObjectStore, projectID, appClientID string, defaults DocumentDefaults) *Service {
	return &Service{
		store:       store,
		directory:   directory,
		validator:   NewValidator(store),
		resolver:    NewResolver(store, directory),
		dedup:       NewDeduper(objects),
		documents:   NewDocumentStore(objects, projectID, defaults),
		audit:       NewAuditLog(objects, projectID),
		appClientID: appClientID,
	}
}

// Import processes one submission end to end. Returns ValidationError for
// rejected input; any other error is unexpected and classified by the HTTP
// layer.
func (s *Service) Import(ctx context.Context, rec *WellnessRecord) (*Result, error) {
	log := logger.WithFields(logrus.Fields{"order_id": rec.OrderID})

	result := &Result{OrderID: rec.OrderID}

	if err := s.audit.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("logging submission: %w", err)
	}

	validation := s.validator.Validate(ctx, rec)
	result.Location = validation.LocationID
	result.Practitioner = validation.PractitionerID

	if !validation.OK {
		result.Action = validation.Message
		if err := s.audit.PatchLast(ctx, AuditUpdate{
			Action:       validation.Message,
			Practitioner: validation.PractitionerID,
			Location:     validation.LocationID,
		}); err != nil {
			log.WithError(err).Warn("failed to record validation outcome")
		}
		return result, ValidationError{message: validation.Message}
	}

	role, err := s.directory.RoleByName(ctx, patientRoleName)
	if err != nil {
		return nil, fmt.Errorf("resolving patient role: %w", err)
	}
	result.PatientRole = role.ID

	resolution, err := s.resolver.Resolve(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("resolving entities: %w", err)
	}
	applyResolution(result, resolution)

	// A known person gaining a new contact point gets it merged in before
	// either regime runs.
	if resolution.Person != nil && (validation.EmailValid || validation.PhoneValid) {
		merged := mergePersonTelecom(*resolution.Person, personResource(rec, result.RelatedPerson, resolution.Person.ID))
		updated, err := s.store.UpdatePerson(ctx, merged)
		if err != nil {
			return nil, fmt.Errorf("merging person contact info: %w", err)
		}
		result.Person = updated.ID
	}

	if resolution.Appointment != nil {
		err = s.reconcileExistingVisit(ctx, rec, validation, resolution, role, result)
	} else {
		err = s.createVisit(ctx, rec, validation, resolution, role, result)
	}
	if err != nil {
		return nil, err
	}

	result.Action = "imported"
	if err := s.audit.PatchLast(ctx, finalAuditUpdate(result)); err != nil {
		return nil, fmt.Errorf("recording outcome: %w", err)
	}

	log.WithFields(logrus.Fields{
		"appointment": result.Appointment,
		"encounter":   result.Encounter,
		"document":    result.DocumentReference,
		"invited":     result.InviteCodeGenerated,
	}).Info("submission reconciled")

	return result, nil
}

func applyResolution(result *Result, resolution *Resolution) {
	if resolution.User != nil {
		result.ExistingUser = resolution.User.ID
	}
	if resolution.Patient != nil {
		result.Patient = resolution.Patient.ID
	}
	if resolution.RelatedPerson != nil {
		result.RelatedPerson = resolution.RelatedPerson.ID
	}
	if resolution.Person != nil {
		result.Person = resolution.Person.ID
	}
	if resolution.Appointment != nil {
		result.Appointment = resolution.Appointment.ID
	}
}

// reconcileExistingVisit is the regime for an order id that already has an
// appointment: refresh every entity hanging off it and dedup the document.
func (s *Service) reconcileExistingVisit(ctx context.Context, rec *WellnessRecord, validation Validation, resolution *Resolution, role *identity.Role, result *Result) error {
	appointment := resolution.Appointment

	if resolution.User != nil {
		if patientID := patientIDFromAppointment(appointment); patientID != "" {
			if _, err := s.store.UpdatePatient(ctx, patientResource(rec, patientID)); err != nil {
				return fmt.Errorf("updating patient: %w", err)
			}
		}
	} else if validation.EmailValid {
		invitation, err := s.invite(ctx, rec, role)
		if err != nil {
			return err
		}
		patientID := idFromProfile(invitation.Profile)
		if _, err := s.store.UpdatePatient(ctx, patientResource(rec, patientID)); err != nil {
			return fmt.Errorf("updating invited patient: %w", err)
		}
		result.User = invitation.ID
		result.InviteURL = invitation.InvitationURL
		result.InviteCodeGenerated = true
		result.Patient = patientID
	}

	graph, err := s.resolver.VisitGraph(ctx, appointment.ID)
	if err != nil {
		return fmt.Errorf("resolving visit graph: %w", err)
	}

	if graph.Patient != nil {
		user, err := s.directory.FindByProfile(ctx, "Patient/"+graph.Patient.ID)
		if err != nil {
			return fmt.Errorf("finding user for patient: %w", err)
		}
		if resolution.User == nil && user != nil {
			result.ExistingUser = user.ID
		}
	}

	if resolution.User == nil && !validation.EmailValid {
		patientID := result.Patient
		if graph.Patient != nil {
			patientID = graph.Patient.ID
		}
		if resolution.Patient != nil {
			patientID = resolution.Patient.ID
		}
		if patientID != "" {
			if _, err := s.store.UpdatePatient(ctx, patientResource(rec, patientID)); err != nil {
				return fmt.Errorf("updating patient: %w", err)
			}
		}
	}

	if graph.Patient != nil {
		result.Patient = graph.Patient.ID
	}
	if graph.RelatedPerson != nil {
		result.RelatedPerson = graph.RelatedPerson.ID
	}
	if graph.Person != nil {
		result.Person = graph.Person.ID
	}
	if graph.Encounter != nil {
		result.Encounter = graph.Encounter.ID
	}
	if graph.Document != nil {
		result.DocumentReference = graph.Document.ID
	}

	if graph.RelatedPerson != nil && graph.Patient != nil {
		if _, err := s.store.UpdateRelatedPerson(ctx, relatedPersonResource(rec, graph.Patient.ID, graph.RelatedPerson.ID)); err != nil {
			return fmt.Errorf("updating related person: %w", err)
		}
	}
	if graph.RelatedPerson != nil && graph.Person != nil {
		if _, err := s.store.UpdatePerson(ctx, personResource(rec, graph.RelatedPerson.ID, graph.Person.ID)); err != nil {
			return fmt.Errorf("updating person: %w", err)
		}
	}
	if graph.Patient != nil && validation.LocationID != "" {
		if _, err := s.store.UpdateAppointment(ctx, appointmentResource(rec, graph.Patient.ID, validation.LocationID, appointment.ID)); err != nil {
			return fmt.Errorf("updating appointment: %w", err)
		}
	}
	if graph.Encounter != nil && graph.Patient != nil && validation.LocationID != "" {
		if _, err := s.store.UpdateEncounter(ctx, encounterResource(rec, graph.Patient.ID, appointment.ID, validation.LocationID, graph.Encounter.ID)); err != nil {
			return fmt.Errorf("updating encounter: %w", err)
		}
	}

	if rec.PDFContent == "" || graph.Document == nil {
		return nil
	}
	return s.reconcileDocument(ctx, rec, validation, graph, result)
}

// reconcileDocument replaces the stored document only when its digest
// differs from the inbound content; metadata is refreshed either way.
func (s *Service) reconcileDocument(ctx context.Context, rec *WellnessRecord, validation Validation, graph *VisitGraph, result *Result) error {
	existing := graph.Document
	patientID := ""
	if graph.Patient != nil {
		patientID = graph.Patient.ID
	}
	encounterID := ""
	if graph.Encounter != nil {
		encounterID = graph.Encounter.ID
	}

	if s.dedup.Match(ctx, rec.PDFContent, existing) {
		refreshed := s.documents.BuildReference(rec.DocumentMeta(), "", patientID, validation.PractitionerID, encounterID, existing.ID)
		// Content matched, so the stored attachment stays where it is.
		if len(existing.Content) > 0 {
			refreshed.Content[0].Attachment.URL = existing.Content[0].Attachment.URL
			refreshed.Content[0].Attachment.Data = existing.Content[0].Attachment.Data
		}
		updated, err := s.store.UpdateDocumentReference(ctx, refreshed)
		if err != nil {
			return fmt.Errorf("refreshing document metadata: %w", err)
		}
		result.DocumentReference = updated.ID
		return nil
	}

	url, err := s.documents.UploadPDF(ctx, rec.OrderID, rec.PDFContent)
	if err != nil {
		return fmt.Errorf("storing document content: %w", err)
	}

	replacement := s.documents.BuildReference(rec.DocumentMeta(), url, patientID, validation.PractitionerID, encounterID, existing.ID)
	updated, err := s.store.UpdateDocumentReference(ctx, replacement)
	if err != nil {
		return fmt.Errorf("replacing document: %w", err)
	}
	result.DocumentReference = updated.ID
	return nil
}

// createVisit is the regime for an unseen order id: resolve or create the
// account, then build the graph bottom-up. Each creation is gated on its
// prerequisite ids; a missing prerequisite skips the step.
func (s *Service) createVisit(ctx context.Context, rec *WellnessRecord, validation Validation, resolution *Resolution, role *identity.Role, result *Result) error {
	switch resolveAccountAction(resolution.User != nil, validation.EmailValid, validation.PhoneValid, resolution.Patient != nil) {
	case accountInvite:
		invitation, err := s.invite(ctx, rec, role)
		if err != nil {
			return err
		}
		result.User = invitation.ID
		result.InviteURL = invitation.InvitationURL
		result.InviteCodeGenerated = true

		updated, err := s.store.UpdatePatient(ctx, patientResource(rec, idFromProfile(invitation.Profile)))
		if err != nil {
			return fmt.Errorf("updating invited patient: %w", err)
		}
		if resolution.Patient != nil {
			result.Patient = resolution.Patient.ID
		} else {
			result.Patient = updated.ID
		}

	case accountBindExisting:
		result.User = resolution.User.ID
		if resolution.Patient == nil {
			created, err := s.store.CreatePatient(ctx, patientResource(rec, ""))
			if err != nil {
				return fmt.Errorf("creating patient: %w", err)
			}
			result.Patient = created.ID
		}

	case accountCreatePatientOnly:
		created, err := s.store.CreatePatient(ctx, patientResource(rec, ""))
		if err != nil {
			return fmt.Errorf("creating patient: %w", err)
		}
		result.Patient = created.ID
	}

	if resolution.RelatedPerson == nil && result.Patient != "" {
		created, err := s.store.CreateRelatedPerson(ctx, relatedPersonResource(rec, result.Patient, ""))
		if err != nil {
			return fmt.Errorf("creating related person: %w", err)
		}
		result.RelatedPerson = created.ID
	}

	if resolution.Person == nil && result.RelatedPerson != "" {
		created, err := s.store.CreatePerson(ctx, personResource(rec, result.RelatedPerson, ""))
		if err != nil {
			return fmt.Errorf("creating person: %w", err)
		}
		result.Person = created.ID
	}

	if result.Patient != "" && validation.LocationID != "" {
		created, err := s.store.CreateAppointment(ctx, appointmentResource(rec, result.Patient, validation.LocationID, ""))
		if err != nil {
			return fmt.Errorf("creating appointment: %w", err)
		}
		result.Appointment = created.ID
	}

	if result.Appointment != "" && result.Patient != "" && validation.LocationID != "" {
		created, err := s.store.CreateEncounter(ctx, encounterResource(rec, result.Patient, result.Appointment, validation.LocationID, ""))
		if err != nil {
			return fmt.Errorf("creating encounter: %w", err)
		}
		result.Encounter = created.ID
	}

	if rec.PDFContent != "" && result.Encounter != "" && result.Patient != "" && validation.PractitionerID != "" && rec.OrderID != "" {
		url, err := s.documents.UploadPDF(ctx, rec.OrderID, rec.PDFContent)
		if err != nil {
			return fmt.Errorf("storing document content: %w", err)
		}
		created, err := s.store.CreateDocumentReference(ctx, s.documents.BuildReference(rec.DocumentMeta(), url, result.Patient, validation.PractitionerID, result.Encounter, ""))
		if err != nil {
			return fmt.Errorf("creating document reference: %w", err)
		}
		result.DocumentReference = created.ID
	}

	return nil
}

func (s *Service) invite(ctx context.Context, rec *WellnessRecord, role *identity.Role) (*identity.Invitation, error) {
	username := rec.Email
	if username == "" {
		username = rec.Phone
	}

	invitation, err := s.directory.Invite(ctx, identity.InviteParams{
		Resource:      map[string]string{"resourceType": "Patient"},
		Username:      username,
		Email:         rec.Email,
		PhoneNumber:   rec.Phone,
		Roles:         []string{role.ID},
		ApplicationID: s.appClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("inviting user: %w", err)
	}
	return invitation, nil
}

// idFromProfile extracts the id from a profile reference like "Patient/<id>".
func idFromProfile(profile string) string {
	_, id, _ := strings.Cut(profile, "/")
	return id
}

func finalAuditUpdate(result *Result) AuditUpdate {
	user := result.User
	if user == "" {
		user = result.ExistingUser
	}

	invited := ""
	if result.InviteCodeGenerated {
		invited = "true"
	}

	return AuditUpdate{
		Action:              result.Action,
		User:                user,
		Patient:             result.Patient,
		RelatedPerson:       result.RelatedPerson,
		Person:              result.Person,
		Appointment:         result.Appointment,
		Encounter:           result.Encounter,
		DocumentReference:   result.DocumentReference,
		InviteCodeGenerated: invited,
		Practitioner:        result.Practitioner,
		Location:            result.Location,
	}
}
