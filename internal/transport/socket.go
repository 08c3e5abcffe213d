package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/retry"
)

// Socket is the websocket-backed Conn implementation.
type Socket struct {
	opts Options
	log  *zerolog.Logger

	mu   sync.Mutex // guards conn replacement on reconnect
	conn *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan proto.Frame

	events chan Push
	states chan State

	closeOnce sync.Once
	done      chan struct{}
}

// Dial establishes a websocket session with the bearer token attached at the
// handshake. It is the production transport.Dialer.
func Dial(ctx context.Context, opts Options) (Conn, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	conn, err := dialOnce(ctx, opts)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		opts:    opts,
		log:     opts.Logger,
		conn:    conn,
		pending: make(map[string]chan proto.Frame),
		events:  make(chan Push, 64),
		states:  make(chan State, 8),
		done:    make(chan struct{}),
	}
	s.pushState(StateConnected)

	go s.readLoop()
	return s, nil
}

func dialOnce(ctx context.Context, opts Options) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.Token)

	conn, _, err := websocket.Dial(dialCtx, opts.URL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	return conn, nil
}

// Request sends a frame and waits for the matching ack.
func (s *Socket) Request(ctx context.Context, event string, data any) (json.RawMessage, error) {
	frame, err := proto.MakeReq(uuid.NewString(), event, data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}

	reply := make(chan proto.Frame, 1)
	s.pendingMu.Lock()
	s.pending[frame.ID] = reply
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, frame.ID)
		s.pendingMu.Unlock()
	}()

	if err := s.write(ctx, frame); err != nil {
		return nil, err
	}

	select {
	case ack := <-reply:
		if !ack.Success {
			return nil, &AckError{Event: event, Reason: ack.Error}
		}
		return ack.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Emit sends a fire-and-forget frame.
func (s *Socket) Emit(ctx context.Context, event string, data any) error {
	frame, err := proto.MakeEmit(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return s.write(ctx, frame)
}

// Events delivers server pushes.
func (s *Socket) Events() <-chan Push {
	return s.events
}

// States delivers connection-state transitions.
func (s *Socket) States() <-chan State {
	return s.states
}

// Close tears the connection down and fails any in-flight requests.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "closing")
		}
	})
	return nil
}

func (s *Socket) write(ctx context.Context, frame proto.Frame) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("write %s: %w", frame.Event, err)
	}
	return nil
}

// readLoop pumps frames off the wire, routing acks to their waiters and
// pushes to the event channel. On a read failure it attempts the bounded
// reconnect policy before giving up.
func (s *Socket) readLoop() {
	defer close(s.events)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		var frame proto.Frame
		if err := wsjson.Read(context.Background(), conn, &frame); err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.log.Warn().Err(err).Msg("socket read failed")
			s.pushState(StateDisconnected)
			s.failPending()

			if !s.reconnect() {
				s.pushState(StateError)
				_ = s.Close()
				return
			}
			s.pushState(StateConnected)
			continue
		}

		switch frame.Type {
		case proto.FrameAck:
			s.pendingMu.Lock()
			reply, ok := s.pending[frame.ID]
			s.pendingMu.Unlock()
			if ok {
				reply <- frame
			} else {
				s.log.Debug().Str("id", frame.ID).Msg("ack with no waiter")
			}
		case proto.FrameEvent:
			select {
			case s.events <- Push{Event: frame.Event, Data: frame.Data}:
			default:
				// Drop if slow consumer.
				s.log.Warn().Str("event", frame.Event).Msg("event dropped, consumer too slow")
			}
		default:
			s.log.Debug().Str("type", frame.Type).Msg("unknown frame type")
		}
	}
}

// reconnect re-dials with a fixed delay between bounded attempts. The token
// from the original handshake is reused; membership is not re-verified here.
func (s *Socket) reconnect() bool {
	attempts := s.opts.ReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := retry.Policy{
		MaxAttempts: attempts,
		Backoff:     retry.Fixed(s.opts.ReconnectDelay),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := policy.Do(ctx, func(ctx context.Context) error {
		conn, dialErr := dialOnce(ctx, s.opts)
		if dialErr != nil {
			s.log.Debug().Err(dialErr).Msg("reconnect attempt failed")
			return dialErr
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("reconnect exhausted")
		return false
	}

	s.log.Info().Msg("socket reconnected")
	return true
}

// failPending unblocks in-flight requests after a disconnect; their acks can
// no longer arrive on the new connection.
func (s *Socket) failPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, reply := range s.pending {
		reply <- proto.Frame{Type: proto.FrameAck, ID: id, Success: false, Error: "connection lost"}
		delete(s.pending, id)
	}
}

func (s *Socket) pushState(state State) {
	select {
	case s.states <- state:
	default:
	}
}
