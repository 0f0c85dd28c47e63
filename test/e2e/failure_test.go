package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/services"
)

// TestPDFDownloadFailureReportsAndCleansUp exhausts the retry budget of the
// extraction job and follows the failure all the way to the closed case.
func TestPDFDownloadFailureReportsAndCleansUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// The PDF is never registered on the fabric, so every download fails.
	require.NoError(t, h.intake.HandlePDFEvent(ctx, e2eRoom1, "$origin-fail", nurseUser,
		"mxc://clinic.example/missing"))
	msg, err := h.repos.Messages.Find(ctx, e2eRoom1, "$origin-fail")
	require.NoError(t, err)
	caseID := msg.CaseID

	h.drain()

	var dead int
	require.NoError(t, h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE case_id = $1 AND job_type = $2 AND status = $3`,
		caseID, models.JobTypeProcessPDFCase, models.JobDead).Scan(&dead))
	assert.Equal(t, 1, dead)

	exceeded, err := h.repos.Events.HasEvent(ctx, caseID, models.EventJobMaxRetriesExceeded)
	require.NoError(t, err)
	assert.True(t, exceeded)

	// The failure reply went out and the case waits for the read receipt.
	c := h.getCase(caseID)
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, c.Status)
	require.NotNil(t, c.Room1FinalReplyEventID)
	final, ok := h.fabric.findPost(*c.Room1FinalReplyEventID)
	require.True(t, ok)
	assert.Equal(t, e2eRoom1, final.RoomID)
	assert.Contains(t, final.Body, "Nao foi possivel concluir")
	assert.Contains(t, final.Body, services.CausePDFDownload)

	h.react(e2eRoom1, "$react-fail", nurseUser, *c.Room1FinalReplyEventID, "✅")
	h.drain()
	assert.Equal(t, models.StatusCleaned, h.getCase(caseID).Status)
}

// TestUnreadablePDFFailsWithExtractionCause feeds a non-PDF payload through
// intake; the extractor rejects it on every attempt and the cause surfaces in
// the failure reply.
func TestUnreadablePDFFailsWithExtractionCause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fabric.addMedia("mxc://clinic.example/not-a-pdf", []byte("GIF89a not a referral"))
	require.NoError(t, h.intake.HandlePDFEvent(ctx, e2eRoom1, "$origin-gif", nurseUser,
		"mxc://clinic.example/not-a-pdf"))
	msg, err := h.repos.Messages.Find(ctx, e2eRoom1, "$origin-gif")
	require.NoError(t, err)
	caseID := msg.CaseID

	h.drain()

	c := h.getCase(caseID)
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, c.Status)
	require.NotNil(t, c.Room1FinalReplyEventID)
	final, ok := h.fabric.findPost(*c.Room1FinalReplyEventID)
	require.True(t, ok)
	assert.Contains(t, final.Body, services.CausePDFExtract)
}
