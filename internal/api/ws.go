package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Cadence of the live stats stream.
const liveStreamInterval = 1 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same open policy as the CORS middleware; the dashboard is served
	// from a different origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveUpdate is one frame of the /ws/live stream.
type LiveUpdate struct {
	Timestamp          string  `json:"timestamp"`
	TotalEarned        float64 `json:"totalEarned"`
	TotalTrades        int64   `json:"totalTrades"`
	HourlyRate         float64 `json:"hourlyRate"`
	FlashLoansExecuted int64   `json:"flashLoansExecuted"`
	GasUsedETH         float64 `json:"gasUsedETH"`
	ActiveStrategies   int     `json:"activeStrategies"`
	IsActive           bool    `json:"isActive"`
	PendingTransfers   int     `json:"pendingTransfers"`
}

// handleLiveStream pushes a stats frame every second until the client
// disconnects.
func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	s.logf("live stream client connected: %s", r.RemoteAddr)

	// Drain incoming frames so close and ping control messages are
	// processed; the stream is write-only otherwise.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(liveStreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.logf("live stream client disconnected: %s", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.liveUpdate()); err != nil {
				s.logf("live stream write: %v", err)
				return
			}
		}
	}
}

// liveUpdate captures the current book aggregates as one stream frame.
func (s *Server) liveUpdate() LiveUpdate {
	snap := s.book.Snapshot()
	return LiveUpdate{
		Timestamp:          snap.Timestamp.Format(time.RFC3339),
		TotalEarned:        snap.TotalEarned,
		TotalTrades:        snap.TotalTrades,
		HourlyRate:         snap.HourlyRate,
		FlashLoansExecuted: snap.FlashLoansExecuted,
		GasUsedETH:         snap.GasUsedETH,
		ActiveStrategies:   snap.ActiveStrategies,
		IsActive:           s.book.Stats().IsActive,
		PendingTransfers:   s.executor.Tracker().Pending(),
	}
}
