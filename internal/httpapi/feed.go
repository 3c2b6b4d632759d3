package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPongTimeout  = 60 * time.Second
	feedPingInterval = 25 * time.Second
)

// handleFeed streams todo change events to a websocket client. Inbound
// frames are only read to notice pongs and closes.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.feed.Subscribe()
	s.setFeedGauge()
	defer func() {
		unsubscribe()
		s.setFeedGauge()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(feedPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
					cancel()
					_ = conn.Close()
					return
				}
			case evt, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
				if err := conn.WriteJSON(evt); err != nil {
					s.logger.Debug("feed write failed", "error", err)
					cancel()
					_ = conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) setFeedGauge() {
	if s.metrics == nil {
		return
	}
	s.metrics.FeedSubscribers.Set(float64(s.feed.Subscribers()))
}
