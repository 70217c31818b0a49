package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// DefaultGatewayURL is the realtime endpoint used to receive commands.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11

	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15

	closeAuthenticationFailed websocket.StatusCode = 4004
	closeInvalidShard         websocket.StatusCode = 4010
	closeDisallowedIntents    websocket.StatusCode = 4014

	readLimit         = 1 << 20
	writeTimeout      = 10 * time.Second
	minReconnectDelay = time.Second
	maxReconnectDelay = 60 * time.Second
)

var (
	// ErrAuthRejected is returned when the gateway refuses the bot token.
	ErrAuthRejected = errors.New("gateway rejected bot token")
	// ErrSessionRejected is returned for close codes that no reconnect can fix
	// (bad shard, unsupported API version, invalid or disallowed intents).
	ErrSessionRejected = errors.New("gateway rejected session")

	errHeartbeatMissed = errors.New("heartbeat ack not received")
)

// Message is the subset of a created chat message the command surface needs.
type Message struct {
	ChannelID string
	Content   string
	FromBot   bool
}

// MessageHandler is invoked for every created message.
type MessageHandler func(ctx context.Context, msg Message)

// Gateway keeps a realtime session open and dispatches created messages.
type Gateway struct {
	URL       string
	Token     string
	OnMessage MessageHandler
	Logger    *slog.Logger

	seq atomic.Int64
}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type messageCreate struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		Bot bool `json:"bot"`
	} `json:"author"`
}

// Run connects and serves until ctx is cancelled, reconnecting with a doubling delay.
func (g *Gateway) Run(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		identified, err := g.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fatal := fatalClose(err); fatal != nil {
			return fatal
		}
		if identified {
			delay = minReconnectDelay
		}
		g.warn("gateway disconnected", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (g *Gateway) connectAndServe(ctx context.Context) (identified bool, err error) {
	url := g.URL
	if url == "" {
		url = DefaultGatewayURL
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	defer conn.CloseNow()

	hello, err := g.read(ctx, conn)
	if err != nil {
		return false, fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return false, fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil || hd.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("invalid hello payload: %v", err)
	}

	if err := g.identify(ctx, conn); err != nil {
		return false, fmt.Errorf("identify: %w", err)
	}
	identified = true

	// Cancelling connCtx closes the socket, which unblocks the read loop below.
	connCtx, cancelConn := context.WithCancelCause(ctx)
	defer cancelConn(nil)
	var acked atomic.Bool
	acked.Store(true)
	go g.heartbeatLoop(connCtx, cancelConn, conn, &acked, time.Duration(hd.HeartbeatInterval)*time.Millisecond)

	for {
		msg, err := g.read(connCtx, conn)
		if err != nil {
			if cause := context.Cause(connCtx); errors.Is(cause, errHeartbeatMissed) {
				return identified, cause
			}
			return identified, fmt.Errorf("read: %w", err)
		}
		if msg.S != nil {
			g.seq.Store(*msg.S)
		}

		switch msg.Op {
		case opDispatch:
			g.dispatch(ctx, msg)
		case opHeartbeat:
			if err := g.heartbeat(connCtx, conn); err != nil {
				return identified, fmt.Errorf("heartbeat: %w", err)
			}
		case opReconnect:
			return identified, errors.New("gateway requested reconnect")
		case opInvalidSession:
			return identified, errors.New("gateway invalidated session")
		case opHeartbeatACK:
			acked.Store(true)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, msg payload) {
	if msg.T != "MESSAGE_CREATE" || g.OnMessage == nil {
		return
	}
	var mc messageCreate
	if err := json.Unmarshal(msg.D, &mc); err != nil {
		g.warn("bad message payload", "error", err)
		return
	}
	g.OnMessage(ctx, Message{ChannelID: mc.ChannelID, Content: mc.Content, FromBot: mc.Author.Bot})
}

func (g *Gateway) identify(ctx context.Context, conn *websocket.Conn) error {
	d, err := json.Marshal(map[string]any{
		"token":   g.Token,
		"intents": intentGuildMessages | intentMessageContent,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "ucginformation",
			"device":  "ucginformation",
		},
	})
	if err != nil {
		return err
	}
	return g.write(ctx, conn, payload{Op: opIdentify, D: d})
}

// heartbeatLoop beats every interval. A beat whose predecessor was never acknowledged
// marks the connection as a zombie and tears it down so Run reconnects.
func (g *Gateway) heartbeatLoop(ctx context.Context, cancel context.CancelCauseFunc, conn *websocket.Conn, acked *atomic.Bool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !acked.Swap(false) {
				cancel(errHeartbeatMissed)
				return
			}
			if err := g.heartbeat(ctx, conn); err != nil {
				g.warn("heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn) error {
	d := json.RawMessage("null")
	if seq := g.seq.Load(); seq > 0 {
		d = json.RawMessage(fmt.Sprintf("%d", seq))
	}
	return g.write(ctx, conn, payload{Op: opHeartbeat, D: d})
}

func (g *Gateway) read(ctx context.Context, conn *websocket.Conn) (payload, error) {
	var p payload
	_, data, err := conn.Read(ctx)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, p payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

func fatalClose(err error) error {
	code := websocket.CloseStatus(err)
	switch {
	case code == closeAuthenticationFailed:
		return ErrAuthRejected
	case code >= closeInvalidShard && code <= closeDisallowedIntents:
		return fmt.Errorf("%w: close code %d", ErrSessionRejected, code)
	}
	return nil
}

func (g *Gateway) warn(msg string, args ...any) {
	if g.Logger != nil {
		g.Logger.Warn(msg, args...)
	}
}
