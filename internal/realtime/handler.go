package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Thread is the replay query the channel server serves on join.
type Thread interface {
	Recent(ctx context.Context, caller identity.Identity, requestID string, n int) ([]*store.ThreadEntry, error)
}

// entryView is the wire shape of one thread entry on the channel.
type entryView struct {
	SenderIdentity string    `json:"senderIdentity"`
	SenderRoleTag  string    `json:"senderRoleTag"`
	Body           string    `json:"body"`
	Timestamp      time.Time `json:"timestamp"`
}

func viewOf(e *store.ThreadEntry) entryView {
	return entryView{
		SenderIdentity: e.SenderID,
		SenderRoleTag:  e.SenderRole,
		Body:           e.Body,
		Timestamp:      e.Timestamp,
	}
}

// ChannelServer serves the websocket endpoint of request channels.
type ChannelServer struct {
	tickets *TicketIssuer
	hub     *Hub
	thread  Thread
	replay  int
	log     *slog.Logger
}

func NewChannelServer(tickets *TicketIssuer, hub *Hub, thread Thread, replay int, log *slog.Logger) *ChannelServer {
	if replay <= 0 {
		replay = 100
	}
	return &ChannelServer{
		tickets: tickets,
		hub:     hub,
		thread:  thread,
		replay:  replay,
		log:     logutil.Component(log, "realtime"),
	}
}

// ServeChannel upgrades GET /ws/requests/{id}?ticket=... to a websocket,
// replays the recent window, then streams live entries until the client
// goes away. Disconnects are silent cleanup.
func (s *ChannelServer) ServeChannel(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	ticket := r.URL.Query().Get("ticket")

	ident, err := s.tickets.Verify(ticket, requestID)
	if err != nil {
		http.Error(w, "invalid or expired ticket", http.StatusForbidden)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		defer conn.Close()
		s.serve(conn, ident, requestID)
	}).ServeHTTP(w, r)
}

func (s *ChannelServer) serve(conn *websocket.Conn, ident identity.Identity, requestID string) {
	ctx := conn.Request().Context()

	// Subscribe before replaying so nothing falls in the gap; live entries
	// already covered by the replay are skipped by sequence number.
	sub := s.hub.Subscribe(requestID)
	defer s.hub.Unsubscribe(sub)

	history, err := s.thread.Recent(ctx, ident, requestID, s.replay)
	if err != nil {
		s.log.Warn("replay denied", "request_id", requestID, "identity", ident.ID, "error", err)
		return
	}
	var lastSeq uint64
	for _, entry := range history {
		if werr := websocket.JSON.Send(conn, viewOf(entry)); werr != nil {
			return
		}
		lastSeq = entry.Seq
	}

	// Drain the client side purely to notice disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard string
		for {
			if rerr := websocket.Message.Receive(conn, &discard); rerr != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-sub.Entries():
			if !ok {
				return
			}
			if entry.Seq != 0 && entry.Seq <= lastSeq {
				continue
			}
			if werr := websocket.JSON.Send(conn, viewOf(entry)); werr != nil {
				return
			}
		case <-gone:
			return
		case <-ctx.Done():
			return
		}
	}
}
