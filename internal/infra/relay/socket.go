package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"liquidity_go/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	ackTimeout       = 15 * time.Second
)

// SocketRelay posts offers to a message-socket relay: one short-lived
// websocket connection per submission, one offer frame out, one ack frame
// back. Short-lived connections keep the relay free to drop idle peers and
// keep this client free of reconnect state.
type SocketRelay struct {
	name   string
	wsURL  string
	dialer *websocket.Dialer
}

// NewSocket creates a websocket relay client.
func NewSocket(name, wsURL string) *SocketRelay {
	return &SocketRelay{
		name:   name,
		wsURL:  wsURL,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
}

// Name returns the configured relay name.
func (r *SocketRelay) Name() string {
	return r.name
}

// offerFrame is the payload element of an ["OFFER", {...}] frame.
type offerFrame struct {
	ID        string `json:"id"`
	Offer     string `json:"offer"`
	CreatedAt int64  `json:"created_at"`
}

// SubmitOffer sends one offer frame and waits for the relay's ack. The ack
// frame is ["OK", <id>, <accepted>, <message>].
func (r *SocketRelay) SubmitOffer(ctx context.Context, offer *domain.SwapOffer) error {
	conn, _, err := r.dialer.DialContext(ctx, r.wsURL, nil)
	if err != nil {
		return domain.NewNetworkError("dial "+r.name, err)
	}
	defer conn.Close()

	frame, err := json.Marshal([]any{"OFFER", offerFrame{
		ID:        offer.TradeID,
		Offer:     offer.Blob,
		CreatedAt: offer.CreatedAt.Unix(),
	}})
	if err != nil {
		return fmt.Errorf("marshal offer frame: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(ackTimeout))
		conn.SetReadDeadline(time.Now().Add(ackTimeout))
	}

	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return domain.NewNetworkError("write "+r.name, err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return domain.NewNetworkError("read "+r.name, err)
	}

	var ack []json.RawMessage
	if err := json.Unmarshal(raw, &ack); err != nil || len(ack) < 3 {
		return domain.NewNetworkError("ack "+r.name, fmt.Errorf("malformed ack %q", raw))
	}

	var accepted bool
	if err := json.Unmarshal(ack[2], &accepted); err != nil {
		return domain.NewNetworkError("ack "+r.name, fmt.Errorf("malformed ack %q", raw))
	}
	if !accepted {
		reason := ""
		if len(ack) > 3 {
			json.Unmarshal(ack[3], &reason)
		}
		return fmt.Errorf("%w: %s %s", domain.ErrRelayRejected, r.name, reason)
	}
	return nil
}
