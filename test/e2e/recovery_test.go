package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/models"
)

// TestStartupRecoveryReenqueuesNextStep simulates the crash window between a
// doctor decision and the Room-3 post: the decided case has no pending job,
// and startup recovery re-enqueues it.
func TestStartupRecoveryReenqueuesNextStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	caseID := h.intakePDF("$origin-rec")
	h.drain()
	root := h.eventOfKind(caseID, models.KindRoom2CaseRoot)
	h.replyRoom2("$doc-rec", doctorUser, root,
		"decisao: aceitar\nsuporte: nenhum\ncaso: "+caseID)

	_, err := h.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE case_id = $1 AND job_type = $2`,
		caseID, models.JobTypePostRoom3Request)
	require.NoError(t, err)
	require.Equal(t, models.StatusDoctorAccepted, h.getCase(caseID).Status)

	n, err := h.recovery.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.drain()
	assert.Equal(t, models.StatusWaitAppt, h.getCase(caseID).Status)
	assert.Positive(t, h.fabric.countInRoom(e2eRoom3))

	// Waiting on a human needs no recovery.
	n, err = h.recovery.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestOrphanedRunningJobResumesAfterReset covers the other half of startup
// recovery: a job claimed by a dead replica goes back to queued and the
// pipeline continues.
func TestOrphanedRunningJobResumesAfterReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	caseID := h.intakePDF("$origin-orphan")

	res, err := h.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, claimed_by = 'dead-pod' WHERE case_id = $2`,
		models.JobRunning, caseID)
	require.NoError(t, err)
	updated, err := res.RowsAffected()
	require.NoError(t, err)
	require.EqualValues(t, 1, updated)

	// Nothing is claimable while the orphan looks running.
	n, err := h.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	reset, err := h.repos.Jobs.ResetRunning(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reset)

	h.drain()
	assert.Equal(t, models.StatusWaitDoctor, h.getCase(caseID).Status)
}
