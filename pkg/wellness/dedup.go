package wellness

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/carelink-health/wellness-import/pkg/common/logger"
	"github.com/carelink-health/wellness-import/pkg/fhir"
)

const blobURLPrefix = "z3://"

// Deduper decides whether inbound document content matches what is already
// stored. Dedup is an optimization: when the prior content is absent or
// unreachable the answer is "no match", forcing an update, never a failure.
type Deduper struct {
	objects ObjectStore
}

func NewDeduper(objects ObjectStore) *Deduper {
	return &Deduper{objects: objects}
}

// Match compares the new base64 payload against the attachment of the stored
// document. Blob-resident content is downloaded and re-encoded to base64 so
// both sides hash over the same representation.
func (d *Deduper) Match(ctx context.Context, newContent string, doc *fhir.DocumentReference) bool {
	if doc == nil || newContent == "" || len(doc.Content) == 0 {
		return false
	}

	attachment := doc.Content[0].Attachment

	if attachment.Data != "" {
		return digest(attachment.Data) == digest(newContent)
	}

	if strings.HasPrefix(attachment.URL, blobURLPrefix) {
		bucket, key, ok := splitBlobURL(attachment.URL)
		if !ok {
			return false
		}
		stored, err := d.objects.Download(ctx, bucket, key)
		if err != nil {
			logger.Log.WithError(err).WithField("url", attachment.URL).
				Warn("stored document unreachable, forcing content update")
			return false
		}
		return digest(base64.StdEncoding.EncodeToString(stored)) == digest(newContent)
	}

	return false
}

func splitBlobURL(url string) (bucket, key string, ok bool) {
	rest := strings.TrimPrefix(url, blobURLPrefix)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
