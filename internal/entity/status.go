package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContactStatus is a lead's position in the outreach funnel. The numeric
// value is the funnel ordinal: automated writes only ever move it upwards.
type ContactStatus int

const (
	StatusUnknown ContactStatus = iota
	StatusNotContacted
	StatusMessage1Sent
	StatusMessage2Sent
	StatusMessage3Sent
	StatusReplied
	StatusHot
	StatusCallBooked

	// Terminal statuses. Nothing automated moves a lead out of these.
	StatusConverted
	StatusRemoved
	StatusArchived
)

var statusNames = map[ContactStatus]string{
	StatusUnknown:      "UNKNOWN",
	StatusNotContacted: "NOT_CONTACTED",
	StatusMessage1Sent: "MESSAGE_1_SENT",
	StatusMessage2Sent: "MESSAGE_2_SENT",
	StatusMessage3Sent: "MESSAGE_3_SENT",
	StatusReplied:      "REPLIED",
	StatusHot:          "HOT",
	StatusCallBooked:   "CALL_BOOKED",
	StatusConverted:    "CONVERTED",
	StatusRemoved:      "REMOVED",
	StatusArchived:     "ARCHIVED",
}

// sheet labels typed by humans, lower-cased and with spaces/dashes collapsed to "_"
var statusAliases = map[string]ContactStatus{
	"ready":          StatusNotContacted,
	"new":            StatusNotContacted,
	"not_contacted":  StatusNotContacted,
	"message_1_sent": StatusMessage1Sent,
	"msg_1_sent":     StatusMessage1Sent,
	"message_2_sent": StatusMessage2Sent,
	"msg_2_sent":     StatusMessage2Sent,
	"message_3_sent": StatusMessage3Sent,
	"msg_3_sent":     StatusMessage3Sent,
	"replied":        StatusReplied,
	"hot":            StatusHot,
	"call_booked":    StatusCallBooked,
	"booked":         StatusCallBooked,
	"converted":      StatusConverted,
	"won":            StatusConverted,
	"removed":        StatusRemoved,
	"dead":           StatusRemoved,
	"archived":       StatusArchived,
}

func (s ContactStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ContactStatus(%d)", int(s))
}

// IsTerminal reports whether s is converted, removed or archived.
func (s ContactStatus) IsTerminal() bool {
	return s >= StatusConverted
}

// Ordinal returns the position of s in the funnel.
func (s ContactStatus) Ordinal() int {
	return int(s)
}

// MessageSentStatus returns the funnel stage reached after sending message
// step (1..3).
func MessageSentStatus(step int) (ContactStatus, bool) {
	switch step {
	case 1:
		return StatusMessage1Sent, true
	case 2:
		return StatusMessage2Sent, true
	case 3:
		return StatusMessage3Sent, true
	}
	return StatusUnknown, false
}

// ParseContactStatus accepts canonical names ("CALL_BOOKED") as well as the
// free-form labels used in the spreadsheet ("Ready", "Call booked").
// Unrecognised input yields StatusUnknown and ok=false.
func ParseContactStatus(raw string) (ContactStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return StatusUnknown, false
	}
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if s, ok := statusAliases[key]; ok {
		return s, true
	}
	for s, name := range statusNames {
		if strings.EqualFold(name, key) && s != StatusUnknown {
			return s, true
		}
	}
	return StatusUnknown, false
}

func (s ContactStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ContactStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, _ := ParseContactStatus(raw)
	*s = parsed
	return nil
}
