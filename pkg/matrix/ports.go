// Package matrix defines the chat-fabric ports the engine depends on and
// their mautrix-backed adapter. Everything above this package speaks in the
// port types; nothing else imports mautrix.
package matrix

import "context"

// SyncBatch is one pull from the fabric's incremental sync endpoint.
type SyncBatch struct {
	NextBatch    string
	JoinedRooms  map[string][]TimelineEvent
	InvitedRooms []string
}

// TimelineEvent is the normalized shape of one room timeline event. Exactly
// one of the message/reaction views is meaningful, selected by Type.
type TimelineEvent struct {
	Type    string // "m.room.message" or "m.reaction"
	EventID string
	Sender  string

	// Message view.
	MsgType     string // "m.text", "m.file", ...
	Body        string
	URL         string // mxc:// URL for file messages
	Mimetype    string
	InReplyToID string

	// Reaction view.
	ReactionKey      string
	RelatesToEventID string
}

// Event type and msgtype constants as they appear on the wire.
const (
	TypeMessage  = "m.room.message"
	TypeReaction = "m.reaction"

	MsgTypeText = "m.text"
	MsgTypeFile = "m.file"

	MimePDF = "application/pdf"
)

// IsPDFFile reports whether the event is a file message carrying a PDF.
func (e TimelineEvent) IsPDFFile() bool {
	return e.Type == TypeMessage && e.MsgType == MsgTypeFile && e.Mimetype == MimePDF && e.URL != ""
}

// Syncer is the pull side of the fabric: incremental sync plus the idempotent
// room-join used for invite acceptance.
type Syncer interface {
	Sync(ctx context.Context, since string) (*SyncBatch, error)
	JoinRoom(ctx context.Context, roomID string) error
}

// ChatClient is the send/redact side of the fabric.
type ChatClient interface {
	SendText(ctx context.Context, roomID, body, formattedBody string) (string, error)
	ReplyText(ctx context.Context, roomID, inReplyTo, body, formattedBody string) (string, error)
	ReplyFileText(ctx context.Context, roomID, inReplyTo, filename, textContent string) (string, error)
	RedactEvent(ctx context.Context, roomID, eventID string) error
}

// MediaDownloader fetches mxc:// content, used for the intake PDF.
type MediaDownloader interface {
	DownloadMXC(ctx context.Context, mxcURL string) ([]byte, error)
}

// MembershipChecker answers whether a user is a joined member of a room.
// Room-2 chat decisions are authorized against it.
type MembershipChecker interface {
	IsUserJoined(ctx context.Context, roomID, userID string) (bool, error)
}
