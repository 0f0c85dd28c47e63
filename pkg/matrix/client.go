package matrix

import (
	"context"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/opentriagem/triagem/pkg/config"
)

// Client adapts a mautrix client to the engine's ports. It performs no
// background sync of its own; the ingress poller drives Sync explicitly so
// cursor advancement stays under the poller's control.
type Client struct {
	mx          *mautrix.Client
	syncTimeout mautrix.ReqSync
	logger      *slog.Logger
}

var (
	_ Syncer            = (*Client)(nil)
	_ ChatClient        = (*Client)(nil)
	_ MediaDownloader   = (*Client)(nil)
	_ MembershipChecker = (*Client)(nil)
)

// NewClient builds the adapter from the Matrix configuration.
func NewClient(cfg config.MatrixConfig, logger *slog.Logger) (*Client, error) {
	mx, err := mautrix.NewClient(cfg.HomeserverURL, id.UserID(cfg.BotUserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	return &Client{
		mx:          mx,
		syncTimeout: mautrix.ReqSync{Timeout: int(cfg.SyncTimeout.Milliseconds())},
		logger:      logger.With("component", "matrix"),
	}, nil
}

// Sync performs one long-poll against /sync and normalizes the response into
// the port shape. Events that fail content parsing are skipped with a warning;
// the fabric redelivers nothing, but every event the engine cares about is
// recoverable through its own idempotency.
func (c *Client) Sync(ctx context.Context, since string) (*SyncBatch, error) {
	req := c.syncTimeout
	req.Since = since
	resp, err := c.mx.FullSyncRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("matrix sync: %w", err)
	}

	batch := &SyncBatch{
		NextBatch:   resp.NextBatch,
		JoinedRooms: make(map[string][]TimelineEvent),
	}
	for roomID, room := range resp.Rooms.Join {
		events := make([]TimelineEvent, 0, len(room.Timeline.Events))
		for _, evt := range room.Timeline.Events {
			te, ok := c.normalizeEvent(evt)
			if ok {
				events = append(events, te)
			}
		}
		batch.JoinedRooms[string(roomID)] = events
	}
	for roomID := range resp.Rooms.Invite {
		batch.InvitedRooms = append(batch.InvitedRooms, string(roomID))
	}
	return batch, nil
}

func (c *Client) normalizeEvent(evt *event.Event) (TimelineEvent, bool) {
	switch evt.Type {
	case event.EventMessage:
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			c.logger.Warn("skipping unparseable message event", "event_id", evt.ID, "error", err)
			return TimelineEvent{}, false
		}
		msg, ok := evt.Content.Parsed.(*event.MessageEventContent)
		if !ok {
			return TimelineEvent{}, false
		}
		te := TimelineEvent{
			Type:    TypeMessage,
			EventID: string(evt.ID),
			Sender:  string(evt.Sender),
			MsgType: string(msg.MsgType),
			Body:    msg.Body,
			URL:     string(msg.URL),
		}
		if info := msg.Info; info != nil {
			te.Mimetype = info.MimeType
		}
		if rel := msg.RelatesTo; rel != nil && rel.InReplyTo != nil {
			te.InReplyToID = string(rel.InReplyTo.EventID)
		}
		return te, true

	case event.EventReaction:
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			c.logger.Warn("skipping unparseable reaction event", "event_id", evt.ID, "error", err)
			return TimelineEvent{}, false
		}
		reaction, ok := evt.Content.Parsed.(*event.ReactionEventContent)
		if !ok {
			return TimelineEvent{}, false
		}
		return TimelineEvent{
			Type:             TypeReaction,
			EventID:          string(evt.ID),
			Sender:           string(evt.Sender),
			ReactionKey:      reaction.RelatesTo.Key,
			RelatesToEventID: string(reaction.RelatesTo.EventID),
		}, true

	default:
		return TimelineEvent{}, false
	}
}

// JoinRoom accepts an invite or re-joins a room. Joining a room the bot is
// already in is a no-op on the homeserver side.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	if _, err := c.mx.JoinRoom(ctx, roomID, nil); err != nil {
		return fmt.Errorf("join room %s: %w", roomID, err)
	}
	return nil
}

// SendText posts a new text message and returns its event id.
func (c *Client) SendText(ctx context.Context, roomID, body, formattedBody string) (string, error) {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	if formattedBody != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = formattedBody
	}
	resp, err := c.mx.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("send text to %s: %w", roomID, err)
	}
	return string(resp.EventID), nil
}

// ReplyText posts a text message as a rich reply to the given event.
func (c *Client) ReplyText(ctx context.Context, roomID, inReplyTo, body, formattedBody string) (string, error) {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(inReplyTo)},
		},
	}
	if formattedBody != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = formattedBody
	}
	resp, err := c.mx.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("reply in %s to %s: %w", roomID, inReplyTo, err)
	}
	return string(resp.EventID), nil
}

// ReplyFileText uploads the text as a plain-text attachment and posts it as a
// file reply.
func (c *Client) ReplyFileText(ctx context.Context, roomID, inReplyTo, filename, textContent string) (string, error) {
	data := []byte(textContent)
	upload, err := c.mx.UploadBytes(ctx, data, "text/plain")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	content := &event.MessageEventContent{
		MsgType: event.MsgFile,
		Body:    filename,
		URL:     upload.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: "text/plain",
			Size:     len(data),
		},
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(inReplyTo)},
		},
	}
	resp, err := c.mx.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return "", fmt.Errorf("post file reply in %s: %w", roomID, err)
	}
	return string(resp.EventID), nil
}

// RedactEvent removes an event from the room. Redacting an already redacted
// event succeeds on the homeserver side, which keeps cleanup retryable.
func (c *Client) RedactEvent(ctx context.Context, roomID, eventID string) error {
	if _, err := c.mx.RedactEvent(ctx, id.RoomID(roomID), id.EventID(eventID)); err != nil {
		return fmt.Errorf("redact %s in %s: %w", eventID, roomID, err)
	}
	return nil
}

// DownloadMXC fetches the raw bytes behind an mxc:// URL.
func (c *Client) DownloadMXC(ctx context.Context, mxcURL string) ([]byte, error) {
	uri, err := id.ParseContentURI(mxcURL)
	if err != nil {
		return nil, fmt.Errorf("parse mxc url %q: %w", mxcURL, err)
	}
	data, err := c.mx.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", mxcURL, err)
	}
	return data, nil
}

// IsUserJoined reports whether the user is currently a joined member of the
// room.
func (c *Client) IsUserJoined(ctx context.Context, roomID, userID string) (bool, error) {
	resp, err := c.mx.JoinedMembers(ctx, id.RoomID(roomID))
	if err != nil {
		return false, fmt.Errorf("list members of %s: %w", roomID, err)
	}
	_, joined := resp.Joined[id.UserID(userID)]
	return joined, nil
}
