// Package e2e drives whole cases through the real database, the job worker,
// and an in-memory chat fabric: Room-1 PDF drop to cleanup, with only the LLM
// replaced by the deterministic client.
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/extract"
	"github.com/opentriagem/triagem/pkg/llm"
	"github.com/opentriagem/triagem/pkg/matrix"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/queue"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/pkg/services"
	"github.com/opentriagem/triagem/test/dbtest"
)

const (
	e2eRoom1 = "!intake:clinic.example"
	e2eRoom2 = "!doctors:clinic.example"
	e2eRoom3 = "!scheduling:clinic.example"

	nurseUser     = "@nurse:clinic.example"
	doctorUser    = "@dra-souza:clinic.example"
	schedulerUser = "@central:clinic.example"
)

// samplePDF is enough of a PDF for the raw-text extractor: a %PDF magic
// prefix and printable referral text carrying an agency record line.
const samplePDF = "%PDF-1.4\n" +
	"Registro: EDA-2026-001\n" +
	"Paciente de 52 anos com indicacao de endoscopia digestiva alta.\n" +
	"Laboratorio e ECG em anexo.\n" +
	"%%EOF"

type fabricPost struct {
	RoomID    string
	EventID   string
	InReplyTo string
	Filename  string
	Body      string
}

// fakeFabric is the in-memory chat fabric. It implements the ChatClient,
// MediaDownloader, and MembershipChecker ports with sequential $bot-N event
// ids, so tests can resolve any bot post by the id the services recorded.
type fakeFabric struct {
	mu       sync.Mutex
	seq      int
	media    map[string][]byte
	members  map[string]map[string]bool
	posts    []fabricPost
	redacted map[string]bool
}

func newFakeFabric() *fakeFabric {
	return &fakeFabric{
		media:    make(map[string][]byte),
		members:  make(map[string]map[string]bool),
		redacted: make(map[string]bool),
	}
}

func (f *fakeFabric) post(roomID, inReplyTo, filename, body string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("$bot-%d", f.seq)
	f.posts = append(f.posts, fabricPost{
		RoomID: roomID, EventID: id, InReplyTo: inReplyTo, Filename: filename, Body: body,
	})
	return id
}

func (f *fakeFabric) SendText(_ context.Context, roomID, body, _ string) (string, error) {
	return f.post(roomID, "", "", body), nil
}

func (f *fakeFabric) ReplyText(_ context.Context, roomID, inReplyTo, body, _ string) (string, error) {
	return f.post(roomID, inReplyTo, "", body), nil
}

func (f *fakeFabric) ReplyFileText(_ context.Context, roomID, inReplyTo, filename, textContent string) (string, error) {
	return f.post(roomID, inReplyTo, filename, textContent), nil
}

func (f *fakeFabric) RedactEvent(_ context.Context, roomID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redacted[roomID+"|"+eventID] = true
	return nil
}

func (f *fakeFabric) DownloadMXC(_ context.Context, mxcURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.media[mxcURL]
	if !ok {
		return nil, fmt.Errorf("media %s not found on homeserver", mxcURL)
	}
	return data, nil
}

func (f *fakeFabric) IsUserJoined(_ context.Context, roomID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[roomID][userID], nil
}

func (f *fakeFabric) join(roomID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[string]bool)
	}
	f.members[roomID][userID] = true
}

func (f *fakeFabric) addMedia(mxcURL string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[mxcURL] = data
}

func (f *fakeFabric) findPost(eventID string) (fabricPost, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.EventID == eventID {
			return p, true
		}
	}
	return fabricPost{}, false
}

func (f *fakeFabric) lastInRoom(roomID string) (fabricPost, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.posts) - 1; i >= 0; i-- {
		if f.posts[i].RoomID == roomID {
			return f.posts[i], true
		}
	}
	return fabricPost{}, false
}

func (f *fakeFabric) countInRoom(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.posts {
		if p.RoomID == roomID {
			n++
		}
	}
	return n
}

func (f *fakeFabric) isRedacted(roomID, eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redacted[roomID+"|"+eventID]
}

// harness wires the full service graph the way the server binary does, over
// an isolated test schema and the fake fabric.
type harness struct {
	t         *testing.T
	db        *sql.DB
	repos     *repo.Repos
	fabric    *fakeFabric
	intake    *services.IntakeService
	room2     *services.Room2ReplyService
	room3     *services.Room3ReplyService
	reactions *services.ReactionService
	recovery  *services.RecoveryService
	worker    *queue.Worker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	repos := repo.New(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fabric := newFakeFabric()
	fabric.join(e2eRoom2, doctorUser)

	rooms := config.RoomsConfig{Room1ID: e2eRoom1, Room2ID: e2eRoom2, Room3ID: e2eRoom3}
	stages := llm.NewStages(llm.NewDeterministicClient(), llm.NewRenderer(repos.Prompts),
		"model-llm1", "model-llm2")

	prior := services.NewPriorCaseService(repos)
	intake := services.NewIntakeService(repos, fabric, logger)
	processPDF := services.NewProcessPDFService(repos, fabric,
		&extract.RawTextExtractor{}, extract.RegexAgencyExtractor{}, stages, true, logger)
	widget := services.NewRoom2WidgetService(repos, fabric, prior, rooms, logger)
	decisions := services.NewDoctorDecisionService(repos, fabric, rooms, logger)
	room2Replies := services.NewRoom2ReplyService(repos, fabric, fabric, decisions, rooms, logger)
	room3Requests := services.NewRoom3RequestService(repos, fabric, rooms, logger)
	room3Replies := services.NewRoom3ReplyService(repos, fabric, rooms, logger)
	finals := services.NewFinalReplyService(repos, fabric, logger)
	reactions := services.NewReactionService(repos, logger)
	cleanup := services.NewCleanupService(repos, fabric, logger)
	failures := services.NewJobFailureService(repos, logger)
	recovery := services.NewRecoveryService(repos, logger)

	registry := queue.NewRegistry()
	registry.Register(models.JobTypeProcessPDFCase, processPDF.Handle)
	registry.Register(models.JobTypePostRoom2Widget, widget.Handle)
	registry.Register(models.JobTypePostRoom3Request, room3Requests.Handle)
	registry.Register(models.JobTypePostRoom1FinalDenialTriage, finals.Handle)
	registry.Register(models.JobTypePostRoom1FinalAppt, finals.Handle)
	registry.Register(models.JobTypePostRoom1FinalApptDenied, finals.Handle)
	registry.Register(models.JobTypePostRoom1FinalFailure, finals.Handle)
	registry.Register(models.JobTypeExecuteCleanup, cleanup.Handle)

	worker := queue.NewWorker("e2e-worker", repos, registry, failures,
		config.WorkerConfig{Count: 1, ClaimLimit: 10, PollInterval: time.Second}, logger)

	return &harness{
		t:         t,
		db:        db,
		repos:     repos,
		fabric:    fabric,
		intake:    intake,
		room2:     room2Replies,
		room3:     room3Replies,
		reactions: reactions,
		recovery:  recovery,
		worker:    worker,
	}
}

// drain runs the worker until the queue settles. Retry backoff is collapsed
// by fast-forwarding run_after before each pass, so exhausted-retries paths
// complete within the loop as well.
func (h *harness) drain() {
	h.t.Helper()
	ctx := context.Background()
	for range 40 {
		_, err := h.db.ExecContext(ctx, `UPDATE jobs SET run_after = now() WHERE status = 'queued'`)
		require.NoError(h.t, err)
		n, err := h.worker.RunOnce(ctx)
		require.NoError(h.t, err)
		if n == 0 {
			return
		}
	}
	h.t.Fatal("job queue did not settle")
}

// intakePDF registers the referral PDF on the fabric and delivers the Room-1
// file event, returning the created case id.
func (h *harness) intakePDF(originEventID string) string {
	h.t.Helper()
	ctx := context.Background()
	mxc := "mxc://clinic.example/" + originEventID
	h.fabric.addMedia(mxc, []byte(samplePDF))
	require.NoError(h.t, h.intake.HandlePDFEvent(ctx, e2eRoom1, originEventID, nurseUser, mxc))

	msg, err := h.repos.Messages.Find(ctx, e2eRoom1, originEventID)
	require.NoError(h.t, err)
	return msg.CaseID
}

func (h *harness) getCase(caseID string) *models.Case {
	h.t.Helper()
	c, err := h.repos.Cases.Get(context.Background(), caseID)
	require.NoError(h.t, err)
	return c
}

// eventOfKind resolves the first tracked message of the given kind.
func (h *harness) eventOfKind(caseID string, kind models.MessageKind) string {
	h.t.Helper()
	msgs, err := h.repos.Messages.FindByCaseAndKind(context.Background(), caseID, kind)
	require.NoError(h.t, err)
	require.NotEmpty(h.t, msgs, "no tracked %s message for case %s", kind, caseID)
	return msgs[0].EventID
}

func (h *harness) replyRoom2(eventID, sender, inReplyTo, body string) {
	h.t.Helper()
	err := h.room2.HandleReply(context.Background(), matrix.TimelineEvent{
		Type: matrix.TypeMessage, MsgType: matrix.MsgTypeText,
		EventID: eventID, Sender: sender, Body: body, InReplyToID: inReplyTo,
	})
	require.NoError(h.t, err)
}

func (h *harness) replyRoom3(eventID, sender, inReplyTo, body string) {
	h.t.Helper()
	err := h.room3.HandleReply(context.Background(), matrix.TimelineEvent{
		Type: matrix.TypeMessage, MsgType: matrix.MsgTypeText,
		EventID: eventID, Sender: sender, Body: body, InReplyToID: inReplyTo,
	})
	require.NoError(h.t, err)
}

func (h *harness) react(roomID, eventID, sender, targetEventID, key string) {
	h.t.Helper()
	err := h.reactions.HandleReaction(context.Background(), roomID, matrix.TimelineEvent{
		Type: matrix.TypeReaction, EventID: eventID, Sender: sender,
		ReactionKey: key, RelatesToEventID: targetEventID,
	})
	require.NoError(h.t, err)
}

// acceptedCase drives a fresh case to WAIT_APPT: intake, pipeline, doctor
// accept, room-3 request. Returns the case id and the request event id.
func (h *harness) acceptedCase(origin string) (string, string) {
	h.t.Helper()
	caseID := h.intakePDF(origin)
	h.drain()

	root := h.eventOfKind(caseID, models.KindRoom2CaseRoot)
	h.replyRoom2("$accept-"+origin, doctorUser, root,
		"decisao: aceitar\nsuporte: nenhum\nmotivo: indicado\ncaso: "+caseID)
	h.drain()

	require.Equal(h.t, models.StatusWaitAppt, h.getCase(caseID).Status)
	return caseID, h.eventOfKind(caseID, models.KindRoom3Request)
}
