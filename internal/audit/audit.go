package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes log item categories.
type Kind string

const (
	KindComment      Kind = "comment"
	KindSerialNumber Kind = "serial-number"
)

// Reading types that are not plant record series.
const (
	ReadingCondition    = "condition"
	ReadingSerialNumber = "serial-number"
)

// CommentUpdate is one before/after pair of a logged value.
type CommentUpdate struct {
	ReadingType string `json:"readingType"`
	Prev        string `json:"prev,omitempty"`
	New         string `json:"new"`
	Manual      bool   `json:"manual"`
}

// SerialChange records one edited battery serial number.
type SerialChange struct {
	BatteryID string `json:"batteryId"`
	Prev      string `json:"prev"`
	New       string `json:"new"`
}

// LogItem is an audit comment attached to a site.
type LogItem struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Submitter      string          `json:"submitter"`
	Date           time.Time       `json:"date"`
	SiteID         string          `json:"siteId"`
	PlantID        string          `json:"plantId,omitempty"`
	CommentUpdates []CommentUpdate `json:"commentUpdates"`
	SerialChanges  []SerialChange  `json:"serialChanges,omitempty"`
	PayloadDigest  string          `json:"payloadDigest,omitempty"`
}

// NewID generates a log item id.
func NewID() string {
	return "log-" + uuid.NewString()
}

// NewCommentLog builds a log of condition and reading changes.
func NewCommentLog(submitter, siteID, plantID string, date time.Time, updates []CommentUpdate) *LogItem {
	return &LogItem{
		Kind:           KindComment,
		Submitter:      submitter,
		Date:           date,
		SiteID:         siteID,
		PlantID:        plantID,
		CommentUpdates: updates,
	}
}

// NewSerialNumberLog builds a log carrying the serial-number status of the
// battery set and the edits that produced it.
func NewSerialNumberLog(submitter, siteID, plantID string, date time.Time, status int, changes []SerialChange) *LogItem {
	return &LogItem{
		Kind:      KindSerialNumber,
		Submitter: submitter,
		Date:      date,
		SiteID:    siteID,
		PlantID:   plantID,
		CommentUpdates: []CommentUpdate{{
			ReadingType: ReadingSerialNumber,
			New:         strconv.Itoa(status),
		}},
		SerialChanges: changes,
	}
}

// FormatValue renders a reading value for a comment.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DigestJSON computes a SHA256 hex digest for payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func digestUpdates(item *LogItem) string {
	payload, err := json.Marshal(struct {
		CommentUpdates []CommentUpdate `json:"commentUpdates"`
		SerialChanges  []SerialChange  `json:"serialChanges,omitempty"`
	}{item.CommentUpdates, item.SerialChanges})
	if err != nil {
		return ""
	}
	return DigestJSON(payload)
}
