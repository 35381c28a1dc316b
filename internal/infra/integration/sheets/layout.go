package sheets

import (
	"fmt"
	"strings"
)

type Field string

const (
	FieldName            Field = "name"
	FieldPhone           Field = "phone"
	FieldEmail           Field = "email"
	FieldStatus          Field = "status"
	FieldBookingTime     Field = "booking_time"
	FieldBookingRef      Field = "booking_ref"
	FieldNotes           Field = "notes"
	FieldConversationLog Field = "conversation_log"
	FieldManualOverride  Field = "manual"
	FieldStarred         Field = "starred"
	FieldArchived        Field = "archived"
	FieldArchivedAt      Field = "archived_at"
	FieldMessage1SentAt  Field = "message_1_sent_at"
	FieldMessage2SentAt  Field = "message_2_sent_at"
	FieldMessage3SentAt  Field = "message_3_sent_at"
)

var defaultOrder = []Field{
	FieldName, FieldPhone, FieldEmail, FieldStatus, FieldBookingTime, FieldBookingRef,
	FieldNotes, FieldConversationLog, FieldManualOverride, FieldStarred, FieldArchived,
	FieldArchivedAt, FieldMessage1SentAt, FieldMessage2SentAt, FieldMessage3SentAt,
}

// Layout maps lead fields to zero-based column indexes. Only phone is
// mandatory; unmapped fields are neither read nor written.
type Layout map[Field]int

func DefaultLayout() Layout {
	l := Layout{}
	for i, f := range defaultOrder {
		l[f] = i
	}
	return l
}

// ParseLayout reads "phone=B,status=D,..." on top of the default layout.
// An empty string yields the default. Two fields may not share a column.
func ParseLayout(columns string) (Layout, error) {
	l := DefaultLayout()
	columns = strings.TrimSpace(columns)
	if columns == "" {
		return l, nil
	}
	known := map[Field]bool{}
	for _, f := range defaultOrder {
		known[f] = true
	}
	for _, pair := range strings.Split(columns, ",") {
		key, letter, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("sheet columns: malformed entry %q", pair)
		}
		f := Field(strings.ToLower(strings.TrimSpace(key)))
		if !known[f] {
			return nil, fmt.Errorf("sheet columns: unknown field %q", key)
		}
		if strings.TrimSpace(letter) == "-" {
			delete(l, f)
			continue
		}
		idx, err := ColumnIndex(letter)
		if err != nil {
			return nil, err
		}
		l[f] = idx
	}
	if _, ok := l[FieldPhone]; !ok {
		return nil, fmt.Errorf("sheet columns: phone column is required")
	}
	owner := map[int]Field{}
	for _, f := range defaultOrder {
		idx, ok := l[f]
		if !ok {
			continue
		}
		if other, taken := owner[idx]; taken {
			return nil, fmt.Errorf("sheet columns: %s and %s share column %s", other, f, ColumnLetter(idx))
		}
		owner[idx] = f
	}
	return l, nil
}

// Width is the number of columns spanned by the layout.
func (l Layout) Width() int {
	max := -1
	for _, idx := range l {
		if idx > max {
			max = idx
		}
	}
	return max + 1
}

// ColumnIndex converts "A" -> 0, "Z" -> 25, "AA" -> 26.
func ColumnIndex(letter string) (int, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return 0, fmt.Errorf("sheet columns: empty column letter")
	}
	n := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("sheet columns: invalid column %q", letter)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// ColumnLetter is the inverse of ColumnIndex.
func ColumnLetter(idx int) string {
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}
