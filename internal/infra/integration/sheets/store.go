package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/identity"
)

// ValuesAPI is the slice of the Sheets values API the store needs. Ranges are
// A1 notation including the tab name.
type ValuesAPI interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, cells map[string]interface{}) error
	Append(ctx context.Context, rng string, row []interface{}) error
	Clear(ctx context.Context, rng string) error
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"02/01/2006",
}

// rowInput is the raw view of one row, validated before it becomes a Lead.
type rowInput struct {
	Phone string `validate:"required"`
	Email string `validate:"omitempty,email"`
}

// Store is the spreadsheet ledger adapter. Row 1 holds headers; leads start
// on row 2.
type Store struct {
	api      ValuesAPI
	tab      string
	layout   Layout
	validate *validator.Validate
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewStore(api ValuesAPI, tab string, layout Layout, logger logrus.FieldLogger) *Store {
	if layout == nil {
		layout = DefaultLayout()
	}
	return &Store{
		api:      api,
		tab:      tab,
		layout:   layout,
		validate: validator.New(),
		logger:   logger.WithField("store", "spreadsheet"),
		now:      time.Now,
	}
}

func (s *Store) dataRange() string {
	return fmt.Sprintf("%s!A2:%s", s.tab, ColumnLetter(s.layout.Width()-1))
}

func (s *Store) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", s.tab, row, ColumnLetter(s.layout.Width()-1), row)
}

func (s *Store) cell(f Field, row int) string {
	return fmt.Sprintf("%s!%s%d", s.tab, ColumnLetter(s.layout[f]), row)
}

// FetchRows reads every row. Blank-phone rows are ignored; malformed rows are
// returned as RecordErrors next to the valid leads.
func (s *Store) FetchRows(ctx context.Context) ([]*entity.Lead, []*entity.RecordError, error) {
	values, err := s.api.Get(ctx, s.dataRange())
	if err != nil {
		return nil, nil, err
	}

	var (
		leads    []*entity.Lead
		rejected []*entity.RecordError
	)
	for i, raw := range values {
		row := i + 2
		if strings.TrimSpace(s.text(raw, FieldPhone)) == "" {
			continue
		}
		lead, recErr := s.parseRow(raw, row)
		if recErr != nil {
			rejected = append(rejected, recErr)
			continue
		}
		leads = append(leads, lead)
	}
	return leads, rejected, nil
}

func (s *Store) FetchAll(ctx context.Context, filter entity.LeadFilter) ([]*entity.Lead, error) {
	leads, rejected, err := s.FetchRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		s.logger.WithField("row", r.Row).Warn(r.Error())
	}
	out := leads[:0]
	for _, l := range leads {
		if filter.Match(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) FetchByIdentity(ctx context.Context, id identity.Identity) (*entity.Lead, error) {
	if id.IsZero() {
		return nil, entity.ErrNotFound
	}
	leads, _, err := s.FetchRows(ctx)
	if err != nil {
		return nil, err
	}
	lead, _, ok := identity.Best(id, leads, (*entity.Lead).Identity)
	if !ok {
		return nil, entity.ErrNotFound
	}
	return lead, nil
}

// Upsert writes only the patched cells of the matching row, or appends a new
// row carrying the identity and the patch.
func (s *Store) Upsert(ctx context.Context, id identity.Identity, patch entity.LeadPatch) (entity.UpsertResult, error) {
	if id.IsZero() {
		return entity.UpsertResult{}, entity.NewFatal("sheet.upsert", errors.New("empty identity"))
	}

	existing, err := s.FetchByIdentity(ctx, id)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return entity.UpsertResult{}, err
	}

	if existing != nil {
		cells := map[string]interface{}{}
		for f, v := range s.patchCells(patch) {
			cells[s.cell(f, existing.SheetRow)] = v
		}
		if len(cells) == 0 {
			return entity.UpsertResult{ID: rowID(existing.SheetRow)}, nil
		}
		if err := s.api.BatchUpdate(ctx, cells); err != nil {
			return entity.UpsertResult{}, err
		}
		return entity.UpsertResult{ID: rowID(existing.SheetRow)}, nil
	}

	row := make([]interface{}, s.layout.Width())
	for i := range row {
		row[i] = ""
	}
	phone := id.Phone
	if phone == "" {
		return entity.UpsertResult{}, entity.NewFatal("sheet.upsert", errors.New("cannot append a row without a phone number"))
	}
	row[s.layout[FieldPhone]] = phone
	if idx, ok := s.layout[FieldEmail]; ok && id.Email != "" {
		row[idx] = id.Email
	}
	for f, v := range s.patchCells(patch) {
		row[s.layout[f]] = v
	}
	if err := s.api.Append(ctx, s.dataRange(), row); err != nil {
		return entity.UpsertResult{}, err
	}
	return entity.UpsertResult{Created: true}, nil
}

// Delete clears the matching row. The row itself stays so row numbers held by
// humans do not shift.
func (s *Store) Delete(ctx context.Context, id identity.Identity) error {
	lead, err := s.FetchByIdentity(ctx, id)
	if err != nil {
		return err
	}
	return s.api.Clear(ctx, s.rowRange(lead.SheetRow))
}

// Ping reads the header row.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.Get(ctx, fmt.Sprintf("%s!1:1", s.tab))
	return err
}

func rowID(row int) string { return fmt.Sprintf("row:%d", row) }

func (s *Store) text(raw []interface{}, f Field) string {
	idx, ok := s.layout[f]
	if !ok || idx >= len(raw) || raw[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(raw[idx]))
}

func (s *Store) parseRow(raw []interface{}, row int) (*entity.Lead, *entity.RecordError) {
	in := rowInput{
		Phone: s.text(raw, FieldPhone),
		Email: s.text(raw, FieldEmail),
	}
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &entity.RecordError{Row: row, Field: strings.ToLower(verrs[0].Field()), Reason: "failed " + verrs[0].Tag()}
		}
		return nil, &entity.RecordError{Row: row, Field: "row", Reason: err.Error()}
	}
	if identity.NormalizePhone(in.Phone) == "" {
		return nil, &entity.RecordError{Row: row, Field: string(FieldPhone), Reason: fmt.Sprintf("unusable phone number %q", in.Phone)}
	}

	lead := &entity.Lead{
		ID:              rowID(row),
		SheetRow:        row,
		Name:            s.text(raw, FieldName),
		Phone:           in.Phone,
		Email:           in.Email,
		BookingRef:      s.text(raw, FieldBookingRef),
		Notes:           s.text(raw, FieldNotes),
		ConversationLog: s.text(raw, FieldConversationLog),
		ManualOverride:  parseBool(s.text(raw, FieldManualOverride)),
		Starred:         parseBool(s.text(raw, FieldStarred)),
		Archived:        parseBool(s.text(raw, FieldArchived)),
	}

	if label := s.text(raw, FieldStatus); label != "" {
		status, ok := entity.ParseContactStatus(label)
		if !ok {
			s.logger.WithFields(logrus.Fields{"row": row, "status": label}).Debug("unrecognised status label")
		}
		lead.Status = status
	} else {
		lead.Status = entity.StatusNotContacted
	}

	times := []struct {
		field Field
		dst   **time.Time
	}{
		{FieldBookingTime, &lead.BookingTime},
		{FieldArchivedAt, &lead.ArchivedAt},
		{FieldMessage1SentAt, &lead.Message1SentAt},
		{FieldMessage2SentAt, &lead.Message2SentAt},
		{FieldMessage3SentAt, &lead.Message3SentAt},
	}
	for _, t := range times {
		v := s.text(raw, t.field)
		if v == "" {
			continue
		}
		parsed, err := parseTime(v)
		if err != nil {
			return nil, &entity.RecordError{Row: row, Field: string(t.field), Reason: fmt.Sprintf("unparseable date %q", v)}
		}
		*t.dst = &parsed
	}
	if lead.Status == entity.StatusArchived {
		lead.Archived = true
	}
	return lead, nil
}

// patchCells renders the populated patch fields as cell values for the
// columns the layout maps.
func (s *Store) patchCells(p entity.LeadPatch) map[Field]interface{} {
	cells := map[Field]interface{}{}
	put := func(f Field, v interface{}) {
		if _, ok := s.layout[f]; ok {
			cells[f] = v
		}
	}
	if p.Name != nil {
		put(FieldName, *p.Name)
	}
	if p.Email != nil {
		put(FieldEmail, *p.Email)
	}
	if p.Status != nil {
		put(FieldStatus, p.Status.String())
	}
	if p.BookingTime != nil {
		put(FieldBookingTime, formatTime(*p.BookingTime))
	}
	if p.BookingRef != nil {
		put(FieldBookingRef, *p.BookingRef)
	}
	if p.Notes != nil {
		put(FieldNotes, *p.Notes)
	}
	if p.ConversationLog != nil {
		put(FieldConversationLog, *p.ConversationLog)
	}
	if p.ManualOverride != nil {
		put(FieldManualOverride, formatBool(*p.ManualOverride))
	}
	if p.Starred != nil {
		put(FieldStarred, formatBool(*p.Starred))
	}
	if p.Archived != nil {
		put(FieldArchived, formatBool(*p.Archived))
	}
	if p.ArchivedAt != nil {
		put(FieldArchivedAt, formatTime(*p.ArchivedAt))
	}
	if p.Message1SentAt != nil {
		put(FieldMessage1SentAt, formatTime(*p.Message1SentAt))
	}
	if p.Message2SentAt != nil {
		put(FieldMessage2SentAt, formatTime(*p.Message2SentAt))
	}
	if p.Message3SentAt != nil {
		put(FieldMessage3SentAt, formatTime(*p.Message3SentAt))
	}
	return cells
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "yes", "y", "1", "x", "✓":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
