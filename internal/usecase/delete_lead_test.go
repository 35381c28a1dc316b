package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/usecase"
)

func newDeleteLead(docs, sheet *memStore) *usecase.DeleteLeadUseCase {
	return &usecase.DeleteLeadUseCase{Docs: docs, Sheet: sheet, Retry: fastRetry(), Logger: nullLogger()}
}

func TestDeleteLead_RemovesFromBothStores(t *testing.T) {
	docs := &memStore{leads: []*entity.Lead{{ID: "lead_447700900123", Phone: "+447700900123"}}}
	sheet := &memStore{leads: []*entity.Lead{{ID: "row:2", Phone: "07700 900123", SheetRow: 2}}}

	out, err := newDeleteLead(docs, sheet).Execute(context.Background(), "07700 900123")

	require.NoError(t, err)
	assert.Equal(t, "+447700900123", out.Phone)
	assert.True(t, out.DeletedDocument)
	assert.True(t, out.ClearedRow)
	assert.Empty(t, docs.leads)
	assert.Empty(t, sheet.leads)
}

func TestDeleteLead_SheetOnly(t *testing.T) {
	sheet := &memStore{leads: []*entity.Lead{{ID: "row:2", Phone: "07700 900123", SheetRow: 2}}}

	out, err := newDeleteLead(&memStore{}, sheet).Execute(context.Background(), "+447700900123")

	require.NoError(t, err)
	assert.False(t, out.DeletedDocument)
	assert.True(t, out.ClearedRow)
}

func TestDeleteLead_NotFound(t *testing.T) {
	_, err := newDeleteLead(&memStore{}, &memStore{}).Execute(context.Background(), "+447700900123")

	require.Error(t, err)
	assert.Equal(t, usecase.CodeLeadNotFound, usecase.ErrorCode(err))
}

func TestDeleteLead_InvalidPhone(t *testing.T) {
	_, err := newDeleteLead(&memStore{}, &memStore{}).Execute(context.Background(), "abc")

	require.Error(t, err)
	assert.Equal(t, usecase.CodeInvalidInput, usecase.ErrorCode(err))
}

func TestDeleteLead_SheetFailureRestoresDocument(t *testing.T) {
	original := &entity.Lead{ID: "lead_447700900123", Phone: "+447700900123", Status: entity.StatusHot, Notes: "keep me"}
	docs := &memStore{leads: []*entity.Lead{original}}
	sheet := &memStore{
		leads:     []*entity.Lead{{ID: "row:2", Phone: "07700 900123", SheetRow: 2}},
		deleteErr: entity.NewFatal("sheet.clear", errors.New("403 forbidden")),
	}

	_, err := newDeleteLead(docs, sheet).Execute(context.Background(), "+447700900123")

	require.Error(t, err)
	assert.True(t, usecase.IsTechnicalError(err))
	require.Len(t, docs.restored, 1)
	assert.Equal(t, "keep me", docs.restored[0].Notes)
	require.NotNil(t, docs.only())
	assert.Equal(t, entity.StatusHot, docs.only().Status)
}
