package sources

import (
	"encoding/base64"
	"strings"

	"github.com/refmatch/refmatch/internal/model"
)

// SyntheticAuthorID builds a stable candidate id of the form
// <source>-<base64(name|externalId)[:16]>. The same author from the same
// source always maps to the same id, so re-running a search is idempotent.
func SyntheticAuthorID(source model.SourceID, name, externalID string) string {
	seed := model.NormalizeName(name) + "|" + externalID
	enc := base64.RawURLEncoding.EncodeToString([]byte(seed))
	if len(enc) > 16 {
		enc = enc[:16]
	}
	return strings.ToLower(string(source)) + "-" + enc
}

// SyntheticAffiliationID derives a deterministic affiliation id from the
// institution name.
func SyntheticAffiliationID(institutionName string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(model.NormalizeName(institutionName)))
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return "aff-" + enc
}

// decodeSyntheticID recovers the (name, externalID) seed from a synthetic
// author id. Truncated seeds decode partially; ok is false when the id is
// not in the synthetic form at all.
func decodeSyntheticID(id string) (name, externalID string, ok bool) {
	idx := strings.IndexByte(id, '-')
	if idx < 0 {
		return "", "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(id[idx+1:])
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	name = parts[0]
	if len(parts) == 2 {
		externalID = parts[1]
	}
	return name, externalID, true
}
