// Package uid builds and classifies the destination identifiers this
// instance writes to the CalDAV collection.
//
// A managed UID has the shape
//
//	{sourceID-}outlook-{sha256(globalID)}-{YYYYMMDDTHHMMSSZ}
//
// The digest keeps the Outlook global id out of URLs and bounds the UID
// length; the suffix is the occurrence's UTC start, so every occurrence of a
// series gets a stable identifier of its own.
package uid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const markerLayout = "20060102T150405Z"

// zeroDigest stands in when an appointment exposes no global id at all.
var zeroDigest = strings.Repeat("0", sha256.Size*2)

// Builder constructs and recognises managed UIDs for one sync instance.
type Builder struct {
	// SourceID is the optional instance tag woven into every UID so that
	// several sources can share one destination calendar.
	SourceID string
}

// Build returns the managed UID for one occurrence.
func (b Builder) Build(globalID string, startUTC time.Time) string {
	prefix := "outlook"
	if b.SourceID != "" {
		prefix = b.SourceID + "-outlook"
	}

	digest := zeroDigest
	if globalID != "" {
		sum := sha256.Sum256([]byte(globalID))
		digest = hex.EncodeToString(sum[:])
	}

	return prefix + "-" + digest + "-" + startUTC.UTC().Format(markerLayout)
}

// Managed reports whether a destination UID belongs to this instance.
// The check is a case-insensitive prefix match so that entries written by
// older builds (which varied the casing of the source tag) are still
// recognised and reaped.
func (b Builder) Managed(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" {
		return false
	}

	prefixes := []string{"-outlook-", "outlook-"}
	if b.SourceID != "" {
		id := strings.ToLower(b.SourceID)
		// The bare "sourceID-" rule keeps legacy entries reapable; it can
		// collide with foreign UIDs that happen to share the tag, so the
		// tag should stay reasonably unique.
		prefixes = append([]string{id + "-outlook-"}, append(prefixes, id+"-")...)
	}

	for _, p := range prefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}
