package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/test/dbtest"
)

func newRepos(t *testing.T) *repo.Repos {
	t.Helper()
	return repo.New(dbtest.Open(t))
}

func createCase(t *testing.T, repos *repo.Repos) *models.Case {
	t.Helper()
	c, err := repos.Cases.Create(context.Background(), uuid.NewString(),
		"!room1:test", "$ev-"+uuid.NewString(), "@nurse:test")
	require.NoError(t, err)
	return c
}

// forceStatus walks the case to the given status via the generic CAS, for
// tests that start mid-lifecycle.
func forceStatus(t *testing.T, repos *repo.Repos, c *models.Case, to models.Status) {
	t.Helper()
	applied, err := repos.Cases.TransitionStatus(context.Background(), c.CaseID, c.Status, to)
	require.NoError(t, err)
	require.True(t, applied)
	c.Status = to
}

func TestCaseCreateAndGet(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	created := createCase(t, repos)
	assert.Equal(t, models.StatusR1AckProcessing, created.Status)

	got, err := repos.Cases.Get(ctx, created.CaseID)
	require.NoError(t, err)
	assert.Equal(t, created.CaseID, got.CaseID)
	assert.Equal(t, created.OriginEventID, got.OriginEventID)
	assert.Nil(t, got.ExtractedText)
}

func TestCaseCreateDuplicateOrigin(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	created := createCase(t, repos)

	_, err := repos.Cases.Create(ctx, uuid.NewString(),
		created.OriginRoomID, created.OriginEventID, created.OriginSenderUserID)
	assert.ErrorIs(t, err, repo.ErrDuplicateOrigin)
}

func TestCaseGetNotFound(t *testing.T) {
	repos := newRepos(t)

	_, err := repos.Cases.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestTransitionStatusIsCompareAndSwap(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)

	applied, err := repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR1AckProcessing, models.StatusExtracting)
	require.NoError(t, err)
	assert.True(t, applied)

	// Same transition again: the source state no longer matches.
	applied, err = repos.Cases.TransitionStatus(ctx, c.CaseID, models.StatusR1AckProcessing, models.StatusExtracting)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracting, got.Status)
}

func TestSaveExtractionAdvancesToLLMStruct(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusExtracting)

	applied, err := repos.Cases.SaveExtraction(ctx, c.CaseID, "texto limpo", "ABC-123")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLLMStruct, got.Status)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, "texto limpo", *got.ExtractedText)
	require.NotNil(t, got.AgencyRecordNumber)
	assert.Equal(t, "ABC-123", *got.AgencyRecordNumber)

	// Redelivery after the advance is a no-op.
	applied, err = repos.Cases.SaveExtraction(ctx, c.CaseID, "outro texto", "XYZ-999")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyDoctorDecision(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusWaitDoctor)

	decidedAt := time.Now().UTC()
	applied, err := repos.Cases.ApplyDoctorDecision(ctx, models.DoctorDecision{
		CaseID:       c.CaseID,
		DoctorUserID: "@doctor:test",
		Decision:     models.DecisionAccept,
		SupportFlag:  models.SupportAnesthesist,
		Reason:       "paciente estavel",
	}, decidedAt)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDoctorAccepted, got.Status)
	require.NotNil(t, got.DoctorDecision)
	assert.Equal(t, models.DecisionAccept, *got.DoctorDecision)
	require.NotNil(t, got.DoctorDecidedAt)

	// A second decision loses: the row already carries doctor_decided_at.
	applied, err = repos.Cases.ApplyDoctorDecision(ctx, models.DoctorDecision{
		CaseID:       c.CaseID,
		DoctorUserID: "@other:test",
		Decision:     models.DecisionDeny,
		SupportFlag:  models.SupportNone,
	}, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyDoctorDecisionDeny(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusWaitDoctor)

	applied, err := repos.Cases.ApplyDoctorDecision(ctx, models.DoctorDecision{
		CaseID:       c.CaseID,
		DoctorUserID: "@doctor:test",
		Decision:     models.DecisionDeny,
		SupportFlag:  models.SupportNone,
		Reason:       "exames vencidos",
	}, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDoctorDenied, got.Status)
}

func TestApplySchedulerDecision(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusWaitAppt)

	when := time.Date(2026, 9, 15, 17, 30, 0, 0, time.UTC)
	applied, err := repos.Cases.ApplySchedulerDecision(ctx, models.SchedulerDecision{
		CaseID:              c.CaseID,
		SchedulerUserID:     "@scheduler:test",
		AppointmentStatus:   models.AppointmentConfirmed,
		AppointmentDatetime: &when,
		Location:            "Centro Cirurgico 2",
		Instructions:        "jejum de 8h",
	}, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApptConfirmed, got.Status)
	require.NotNil(t, got.AppointmentDatetime)
	assert.True(t, when.Equal(got.AppointmentDatetime.UTC()))

	// Second reply races and loses.
	applied, err = repos.Cases.ApplySchedulerDecision(ctx, models.SchedulerDecision{
		CaseID:            c.CaseID,
		SchedulerUserID:   "@other:test",
		AppointmentStatus: models.AppointmentDenied,
		Reason:            "sem vaga",
	}, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMarkFinalReplyPostedOnce(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusDoctorDenied)

	applied, err := repos.Cases.MarkFinalReplyPosted(ctx, c.CaseID, "$final-1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repos.Cases.MarkFinalReplyPosted(ctx, c.CaseID, "$final-2")
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repos.Cases.GetByFinalReplyEventID(ctx, "$final-1")
	require.NoError(t, err)
	assert.Equal(t, c.CaseID, got.CaseID)
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, got.Status)

	_, err = repos.Cases.GetByFinalReplyEventID(ctx, "$final-2")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestClaimCleanupSingleWinner(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusWaitR1CleanupThumbs)

	applied, err := repos.Cases.ClaimCleanup(ctx, c.CaseID, "@nurse:test", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)

	// The second reactor observes the claim and loses.
	applied, err = repos.Cases.ClaimCleanup(ctx, c.CaseID, "@other:test", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCleanupRunning, got.Status)
	require.NotNil(t, got.CleanupTriggeredByUserID)
	assert.Equal(t, "@nurse:test", *got.CleanupTriggeredByUserID)

	applied, err = repos.Cases.MarkCleanupCompleted(ctx, c.CaseID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)

	got, err = repos.Cases.Get(ctx, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCleaned, got.Status)
	assert.NotNil(t, got.CleanupCompletedAt)
}

func TestMarkFailed(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	c := createCase(t, repos)
	applied, err := repos.Cases.MarkFailed(ctx, c.CaseID)
	require.NoError(t, err)
	assert.True(t, applied)

	// Already failed: no second flip.
	applied, err = repos.Cases.MarkFailed(ctx, c.CaseID)
	require.NoError(t, err)
	assert.False(t, applied)

	// Cleaned cases are terminal and stay cleaned.
	cleaned := createCase(t, repos)
	forceStatus(t, repos, cleaned, models.StatusCleaned)
	applied, err = repos.Cases.MarkFailed(ctx, cleaned.CaseID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func denyCaseWithRecord(t *testing.T, repos *repo.Repos, record, reason string) *models.Case {
	t.Helper()
	ctx := context.Background()
	c := createCase(t, repos)
	forceStatus(t, repos, c, models.StatusExtracting)
	applied, err := repos.Cases.SaveExtraction(ctx, c.CaseID, "texto", record)
	require.NoError(t, err)
	require.True(t, applied)
	c.Status = models.StatusLLMStruct
	forceStatus(t, repos, c, models.StatusWaitDoctor)

	applied, err = repos.Cases.ApplyDoctorDecision(ctx, models.DoctorDecision{
		CaseID:       c.CaseID,
		DoctorUserID: "@doctor:test",
		Decision:     models.DecisionDeny,
		SupportFlag:  models.SupportNone,
		Reason:       reason,
	}, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)
	return c
}

func TestFindPriorDenials(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	denied := denyCaseWithRecord(t, repos, "REC-777", "exames vencidos")
	current := createCase(t, repos)

	denials, err := repos.Cases.FindPriorDenials(ctx, current.CaseID, "REC-777",
		time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, denials, 1)
	assert.Equal(t, denied.CaseID, denials[0].CaseID)
	assert.Equal(t, "doctor", denials[0].Source)
	assert.Equal(t, "exames vencidos", denials[0].Reason)

	// The denied case never sees itself.
	self, err := repos.Cases.FindPriorDenials(ctx, denied.CaseID, "REC-777",
		time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, self)

	// Outside the window nothing matches.
	recent, err := repos.Cases.FindPriorDenials(ctx, current.CaseID, "REC-777",
		time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestListFiltersByStatusAndWindow(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	createCase(t, repos)
	second := createCase(t, repos)
	forceStatus(t, repos, second, models.StatusExtracting)

	st := models.StatusExtracting
	cases, total, err := repos.Cases.List(ctx, models.CaseFilters{
		Page: 1, PageSize: 10, Status: &st,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, cases, 1)
	assert.Equal(t, second.CaseID, cases[0].CaseID)

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	cases, total, err = repos.Cases.List(ctx, models.CaseFilters{
		Page: 1, PageSize: 1, FromDate: &yesterday, ToDate: &tomorrow,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, cases, 1)

	// A window in the past excludes both.
	lastWeekStart := time.Now().UTC().Add(-14 * 24 * time.Hour)
	lastWeekEnd := time.Now().UTC().Add(-7 * 24 * time.Hour)
	_, total, err = repos.Cases.List(ctx, models.CaseFilters{
		Page: 1, PageSize: 10, FromDate: &lastWeekStart, ToDate: &lastWeekEnd,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
}
