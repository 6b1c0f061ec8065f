package wellness

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/carelink-health/wellness-import/pkg/common/logger"
)

const (
	auditBucketSuffix = "-wellness-imports"
	auditObjectKey    = "wellness-imports.csv"
)

// auditColumns is the fixed schema of the import log. Column order is the
// wire format; changing it breaks every previously written object.
var auditColumns = []string{
	"global_id",
	"import_timestamp",
	"email",
	"phone",
	"first_name",
	"last_name",
	"zip",
	"dob",
	"action",
	"user",
	"patient",
	"relatedPerson",
	"person",
	"appointment",
	"encounter",
	"documentReference",
	"inviteCodeGenerated",
	"practitioner",
	"location",
	"application",
}

// AuditUpdate is a partial update over the fixed schema. Empty values leave
// the stored cell untouched.
type AuditUpdate struct {
	Action              string
	User                string
	Patient             string
	RelatedPerson       string
	Person              string
	Appointment         string
	Encounter           string
	DocumentReference   string
	InviteCodeGenerated string
	Practitioner        string
	Location            string
}

func (u AuditUpdate) column(name string) string {
	switch name {
	case "action":
		return u.Action
	case "user":
		return u.User
	case "patient":
		return u.Patient
	case "relatedPerson":
		return u.RelatedPerson
	case "person":
		return u.Person
	case "appointment":
		return u.Appointment
	case "encounter":
		return u.Encounter
	case "documentReference":
		return u.DocumentReference
	case "inviteCodeGenerated":
		return u.InviteCodeGenerated
	case "practitioner":
		return u.Practitioner
	case "location":
		return u.Location
	default:
		return ""
	}
}

// AuditLog appends one row per submission to a single CSV object and can
// patch the most recently appended row with late-arriving identifiers.
//
// The update protocol is read-whole-object/rewrite-whole-object: concurrent
// runs racing on the same object lose to the last writer. Callers needing
// strict ordering must serialize runs.
type AuditLog struct {
	objects ObjectStore
	bucket  string

	now func() time.Time
}

func NewAuditLog(objects ObjectStore, projectID string) *AuditLog {
	return &AuditLog{
		objects: objects,
		bucket:  projectID + auditBucketSuffix,
		now:     time.Now,
	}
}

// Append writes a new row from the inbound record's raw fields. Identifiers
// not yet known stay blank until PatchLast. A missing or headerless object is
// rebuilt around the fixed header.
func (l *AuditLog) Append(ctx context.Context, rec *WellnessRecord) error {
	rows := l.existingRows(ctx)

	row := make([]string, len(auditColumns))
	row[0] = rec.OrderID
	row[1] = l.now().UTC().Format(time.RFC3339)
	row[2] = rec.Email
	row[3] = rec.Phone
	row[4] = rec.FirstName
	row[5] = rec.LastName
	row[6] = string(rec.Zip)
	row[7] = rec.DOB
	rows = append(rows, row)

	return l.upload(ctx, rows)
}

// PatchLast merges non-empty update values into the last row only. Rows
// above it are immutable.
func (l *AuditLog) PatchLast(ctx context.Context, update AuditUpdate) error {
	content, err := l.objects.Download(ctx, l.bucket, auditObjectKey)
	if err != nil {
		return fmt.Errorf("fetching audit log: %w", err)
	}

	rows := parseAuditRows(content)
	if len(rows) < 1 {
		return fmt.Errorf("audit log has no rows to patch")
	}

	header := auditColumns
	last := rows[len(rows)-1]
	for i, column := range header {
		if i >= len(last) {
			break
		}
		if value := update.column(column); value != "" {
			last[i] = value
		}
	}

	return l.upload(ctx, rows)
}

// existingRows returns the data rows of the current object, without the
// header. A missing object starts an empty log rather than failing the run.
func (l *AuditLog) existingRows(ctx context.Context) [][]string {
	content, err := l.objects.Download(ctx, l.bucket, auditObjectKey)
	if err != nil {
		logger.Log.WithError(err).Info("no existing audit log, starting a new one")
		return nil
	}
	return parseAuditRows(content)
}

func parseAuditRows(content []byte) [][]string {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		return nil
	}
	if records[0][0] == auditColumns[0] {
		records = records[1:]
	}
	return records
}

func (l *AuditLog) upload(ctx context.Context, rows [][]string) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(auditColumns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	if err := l.objects.Upload(ctx, l.bucket, auditObjectKey, "text/csv", buf.Bytes()); err != nil {
		return fmt.Errorf("uploading audit log: %w", err)
	}
	return nil
}
