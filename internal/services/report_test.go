package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/messagestack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.reports.Generate(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, empty.Consent.Granted)
	assert.Nil(t, empty.Consent.ExpiresAt)
	assert.Zero(t, empty.AuditEntryCount)

	f.grant(t, "u1", 30, insightPurposes, surveyData)
	f.clock.Advance(time.Hour)
	_, err = f.ai.Process(ctx, AIRequest{UserID: "u1", Purpose: types.PurposeUserInsights, DataType: types.DataTypeSurveyResponses, Payload: "x"})
	require.NoError(t, err)
	_, err = f.ai.Process(ctx, AIRequest{UserID: "u1", Purpose: types.PurposePersonalization, DataType: types.DataTypeSurveyResponses, Payload: "x"})
	require.Error(t, err)

	report, err := f.reports.Generate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Consent.Granted)
	require.NotNil(t, report.Consent.ExpiresAt)
	assert.Equal(t, baseTime.AddDate(0, 0, 30), *report.Consent.ExpiresAt)
	assert.Equal(t, 1, report.AIRecordCount)
	assert.Equal(t, 1, report.ActionCounts[ActionConsentGranted])
	assert.Equal(t, 1, report.ActionCounts[ActionAIProcessingDenied])
	assert.Equal(t, 2, report.AuditEntryCount)
	require.NotNil(t, report.LastActivityAt)
	assert.Equal(t, baseTime.Add(time.Hour), *report.LastActivityAt)
}

func TestExportReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reports.Export(ctx, "u1")
	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.ErrorIs(t, f.reports.DeleteExport(ctx, "u1"), ErrStorageDisabled)

	objects := newFakeObjectStore()
	f.reports.WithStorage(objects)
	f.grant(t, "u1", 30, insightPurposes, surveyData)

	key, err := f.reports.Export(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "privacy-reports/u1.json", key)

	reader, err := f.reports.OpenExport(ctx, "u1")
	require.NoError(t, err)
	var report types.PrivacyReport
	require.NoError(t, json.NewDecoder(reader).Decode(&report))
	require.NoError(t, reader.Close())
	assert.Equal(t, "u1", report.UserID)
	assert.True(t, report.Consent.Granted)

	require.NoError(t, f.reports.DeleteExport(ctx, "u1"))
	_, ok := objects.object(key)
	assert.False(t, ok)

	_, err = f.reports.OpenExport(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoExport)
}
