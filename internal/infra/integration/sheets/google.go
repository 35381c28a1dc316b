package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/xavierca1/leadsync/internal/entity"
)

// GoogleValues implements ValuesAPI over the Sheets v4 REST API.
type GoogleValues struct {
	svc           *gsheets.Service
	spreadsheetID string
}

func NewGoogleValues(ctx context.Context, credentialsFile, spreadsheetID string) (*GoogleValues, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &GoogleValues{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (g *GoogleValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("sheet.get", err)
	}
	return resp.Values, nil
}

func (g *GoogleValues) BatchUpdate(ctx context.Context, cells map[string]interface{}) error {
	req := &gsheets.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for rng, v := range cells {
		req.Data = append(req.Data, &gsheets.ValueRange{
			Range:  rng,
			Values: [][]interface{}{{v}},
		})
	}
	_, err := g.svc.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
	return classify("sheet.update", err)
}

func (g *GoogleValues) Append(ctx context.Context, rng string, row []interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rng, &gsheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return classify("sheet.append", err)
}

func (g *GoogleValues) Clear(ctx context.Context, rng string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return classify("sheet.clear", err)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return entity.ClassifyHTTPStatus(op, apiErr.Code, apiErr.Message)
	}
	// network failures and deadlines
	return entity.NewTransient(op, err)
}
