package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/models"
)

func TestPipelineScheduledAndCleaned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	caseID := h.intakePDF("$origin-1")

	// A redelivered origin event is a silent no-op.
	require.NoError(t, h.intake.HandlePDFEvent(ctx, e2eRoom1, "$origin-1", nurseUser,
		"mxc://clinic.example/$origin-1"))

	h.drain()

	c := h.getCase(caseID)
	assert.Equal(t, models.StatusWaitDoctor, c.Status)
	require.NotNil(t, c.AgencyRecordNumber)
	assert.Equal(t, "EDA-2026-001", *c.AgencyRecordNumber)
	require.NotNil(t, c.SummaryText)
	require.NotNil(t, c.SuggestedActionJSON)

	root := h.eventOfKind(caseID, models.KindRoom2CaseRoot)
	rootPost, ok := h.fabric.findPost(root)
	require.True(t, ok)
	assert.Contains(t, rootPost.Body, "registro: EDA-2026-001")
	assert.Contains(t, rootPost.Body, "caso: "+caseID)

	h.replyRoom2("$doc-1", doctorUser, root,
		"decisao: aceitar\nsuporte: anestesista\nmotivo: paciente estavel\ncaso: "+caseID)

	ack, ok := h.fabric.lastInRoom(e2eRoom2)
	require.True(t, ok)
	assert.Equal(t, "resultado: sucesso", ack.Body)

	h.drain()
	c = h.getCase(caseID)
	assert.Equal(t, models.StatusWaitAppt, c.Status)

	req := h.eventOfKind(caseID, models.KindRoom3Request)
	reqPost, ok := h.fabric.findPost(req)
	require.True(t, ok)
	assert.Contains(t, reqPost.Body, "suporte necessario: anestesista")
	assert.Contains(t, reqPost.Body, "caso: "+caseID)

	h.replyRoom3("$sched-1", schedulerUser, req,
		"status: confirmado\ndata_hora: 15-09-2026 14:30 BRT\nlocal: Sala 2\ninstrucoes: jejum de 8 horas\ncaso: "+caseID)
	h.drain()

	c = h.getCase(caseID)
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, c.Status)
	require.NotNil(t, c.Room1FinalReplyEventID)
	final, ok := h.fabric.findPost(*c.Room1FinalReplyEventID)
	require.True(t, ok)
	assert.Equal(t, e2eRoom1, final.RoomID)
	assert.Contains(t, final.Body, "AGENDADO")
	assert.Contains(t, final.Body, "local: Sala 2")

	// A negative reaction does not trigger cleanup.
	h.react(e2eRoom1, "$react-neg", nurseUser, *c.Room1FinalReplyEventID, "\U0001F44E")
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, h.getCase(caseID).Status)

	tracked, err := h.repos.Messages.ListByCase(ctx, caseID)
	require.NoError(t, err)
	require.NotEmpty(t, tracked)

	h.react(e2eRoom1, "$react-1", nurseUser, *c.Room1FinalReplyEventID, "\U0001F44D")
	h.drain()

	c = h.getCase(caseID)
	assert.Equal(t, models.StatusCleaned, c.Status)
	require.NotNil(t, c.CleanupTriggeredByUserID)
	assert.Equal(t, nurseUser, *c.CleanupTriggeredByUserID)
	for _, m := range tracked {
		assert.True(t, h.fabric.isRedacted(m.RoomID, m.EventID),
			"expected %s in %s redacted", m.EventID, m.RoomID)
	}

	// A later thumbs up on the cleaned case changes nothing.
	h.react(e2eRoom1, "$react-2", doctorUser, *c.Room1FinalReplyEventID, "\U0001F44D")
	h.drain()
	assert.Equal(t, models.StatusCleaned, h.getCase(caseID).Status)
}

func TestPipelineDoctorDenied(t *testing.T) {
	h := newHarness(t)

	caseID := h.intakePDF("$origin-deny")
	h.drain()

	root := h.eventOfKind(caseID, models.KindRoom2CaseRoot)
	h.replyRoom2("$doc-deny", doctorUser, root,
		"decisao: negar\nmotivo: exame nao indicado\ncaso: "+caseID)
	h.drain()

	c := h.getCase(caseID)
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, c.Status)
	require.NotNil(t, c.Room1FinalReplyEventID)
	final, ok := h.fabric.findPost(*c.Room1FinalReplyEventID)
	require.True(t, ok)
	assert.Contains(t, final.Body, "NEGADA pela equipe medica")
	assert.Contains(t, final.Body, "motivo: exame nao indicado")

	// A denied case never reaches the scheduling room.
	assert.Zero(t, h.fabric.countInRoom(e2eRoom3))

	h.react(e2eRoom1, "$react-deny", nurseUser, *c.Room1FinalReplyEventID, "✅")
	h.drain()
	assert.Equal(t, models.StatusCleaned, h.getCase(caseID).Status)
}

func TestPipelineAppointmentDenied(t *testing.T) {
	h := newHarness(t)

	caseID, req := h.acceptedCase("$origin-appt-deny")

	h.replyRoom3("$sched-deny", schedulerUser, req,
		"status: negado\nmotivo: sem vaga no periodo\ncaso: "+caseID)
	h.drain()

	c := h.getCase(caseID)
	assert.Equal(t, models.StatusWaitR1CleanupThumbs, c.Status)
	require.NotNil(t, c.Room1FinalReplyEventID)
	final, ok := h.fabric.findPost(*c.Room1FinalReplyEventID)
	require.True(t, ok)
	assert.Contains(t, final.Body, "agendamento NEGADO")
	assert.Contains(t, final.Body, "motivo: sem vaga no periodo")
}
