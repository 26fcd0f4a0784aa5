package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/api/middleware"
	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/logger"
)

const joystickLogInterval = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS and auth middleware
	},
}

// Presence is the engine surface the control channel reports to.
type Presence interface {
	Register(h autoplay.ClientHandle) error
	Unregister(h autoplay.ClientHandle) error
	Status() autoplay.Status
}

// FeedSettingsStore persists feed settings changed over the channel.
type FeedSettingsStore interface {
	SaveFeed(ctx context.Context, s feed.Settings) error
}

// Options wires a Server.
type Options struct {
	Engine   Presence
	Actuator actuator.Facade
	Feed     *feed.Scheduler
	// Store is optional; without it feed settings changes are not persisted.
	Store FeedSettingsStore
	Clock clockwork.Clock
}

// Server serves the /ws control channel. Every open connection counts as a
// connected client for the autoplay engine.
type Server struct {
	engine  Presence
	act     actuator.Facade
	feed    *feed.Scheduler
	store   FeedSettingsStore
	clock   clockwork.Clock
	manager *ConnectionManager
}

// Message is an inbound command frame.
type Message struct {
	Type      string   `json:"type"`
	Direction string   `json:"direction,omitempty"`
	X         *int     `json:"x,omitempty"`
	Y         *int     `json:"y,omitempty"`
	Name      string   `json:"name,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Amount    *int     `json:"amount,omitempty"`
	Mode      *string  `json:"mode,omitempty"`
	Interval  *int     `json:"interval,omitempty"`
}

// Response answers every command.
type Response struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Event is pushed to every connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	TypeCommandResponse = "command_response"
	TypeStatus          = "status"

	StatusSuccess = "success"
	StatusError   = "error"
)

func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.Actuator == nil {
		return nil, errors.New("websocket: engine and actuator are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Server{
		engine:  opts.Engine,
		act:     opts.Actuator,
		feed:    opts.Feed,
		store:   opts.Store,
		clock:   opts.Clock,
		manager: NewConnectionManager(),
	}, nil
}

// Manager exposes the connection registry.
func (s *Server) Manager() *ConnectionManager { return s.manager }

// BroadcastStatus pushes an engine status to every connection without
// blocking, so it is safe to call from the engine's change hook.
func (s *Server) BroadcastStatus(st autoplay.Status) {
	s.manager.Broadcast(Event{Type: TypeStatus, Data: st})
}

// HandleWebSocket handles GET /ws
func (s *Server) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[ws] upgrade error: %v", err)
		return
	}

	client := newClient(autoplay.ClientHandle(uuid.NewString()), conn, s.clock)
	s.manager.AddConnection(client)
	if err := s.engine.Register(client.Handle); err != nil {
		logger.Warnf("[ws] register %s: %v", client.Handle, err)
	}
	who := "anonymous"
	if name, ok := middleware.GetController(c); ok {
		who = name
	}
	logger.Infof("[ws] client connected: %s as %s (%d open)", client.Handle, who, s.manager.GetConnectionCount())

	go client.writePump()
	s.readLoop(c.Request.Context(), client)

	client.close()
	s.manager.RemoveConnection(client.Handle)
	if err := s.engine.Unregister(client.Handle); err != nil {
		logger.Warnf("[ws] unregister %s: %v", client.Handle, err)
	}
	logger.Infof("[ws] client disconnected: %s (%d open)", client.Handle, s.manager.GetConnectionCount())
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("[ws] %s read error: %v", client.Handle, err)
			}
			return
		}

		resp := s.handleFrame(ctx, client, data)
		out, err := json.Marshal(resp)
		if err != nil {
			logger.Errorf("[ws] marshal response: %v", err)
			continue
		}
		if !client.enqueue(out) {
			logger.Warnf("[ws] %s send queue full, dropping response to %s", client.Handle, resp.Command)
		}
	}
}

// handleFrame parses a frame (JSON or a bare text command) and runs it.
func (s *Server) handleFrame(ctx context.Context, client *Client, data []byte) Response {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = Message{Type: strings.TrimSpace(string(data))}
	}
	msg.Type = strings.ToLower(strings.TrimSpace(msg.Type))
	if msg.Type == "" && msg.Mode != nil {
		msg.Type = "feed_settings"
	}

	command, text, payload, err := s.dispatch(ctx, msg)
	joystick := msg.Type == "joystick"
	if err != nil {
		logger.Warnf("[ws] %s: %s failed: %v", client.Handle, command, err)
		return Response{Type: TypeCommandResponse, Command: command, Status: StatusError, Message: err.Error()}
	}
	if client.shouldLog(command, joystick) {
		logger.Infof("[ws] %s: %s", client.Handle, text)
	}
	return Response{Type: TypeCommandResponse, Command: command, Status: StatusSuccess, Message: text, Data: payload}
}

func (s *Server) dispatch(ctx context.Context, msg Message) (command, text string, payload any, err error) {
	command = msg.Type
	switch msg.Type {
	case "":
		return "unknown", "", nil, errors.New("empty command")

	case "joystick":
		dir, perr := actuator.ParseDirection(msg.Direction)
		if perr != nil {
			return "joystick_" + strings.ToLower(msg.Direction), "", nil, perr
		}
		command = "joystick_" + string(dir)
		return command, fmt.Sprintf("joystick %s", dir), nil, s.drive(dir)

	case "forward", "backward", "left", "right", "stop":
		dir, _ := actuator.ParseDirection(msg.Type)
		return command, fmt.Sprintf("drive %s", dir), nil, s.drive(dir)

	case "laser_on":
		return command, "laser on", nil, s.act.SetLaser(true)
	case "laser_off":
		return command, "laser off", nil, s.act.SetLaser(false)

	case "fire", "sol":
		return command, "fired", nil, s.act.Fire()

	case "pointer":
		if msg.X == nil || msg.Y == nil {
			return command, "", nil, errors.New("pointer needs x and y")
		}
		return command, fmt.Sprintf("pointer (%d,%d)", *msg.X, *msg.Y), nil, s.act.MovePointer(*msg.X, *msg.Y)
	case "center", "reset":
		return command, "pointer centered", nil, s.act.CenterPointer()

	case "sound":
		if msg.Name == "" {
			return command, "", nil, errors.New("sound needs a name")
		}
		volume := 1.0
		if msg.Volume != nil {
			volume = *msg.Volume
		}
		return command, "played " + msg.Name, nil, s.act.PlaySound(msg.Name, volume)

	case "feed_now":
		if s.feed == nil {
			return command, "", nil, errors.New("feeder not configured")
		}
		amount := 1
		if msg.Amount != nil {
			amount = *msg.Amount
		}
		return command, fmt.Sprintf("fed %d portion(s)", amount), nil, s.feed.FeedNow(ctx, amount)

	case "feed_settings":
		next, ferr := s.applyFeedSettings(ctx, msg)
		return command, "feed settings applied", next, ferr

	case "status":
		return command, "status", s.engine.Status(), nil

	default:
		return command, "", nil, fmt.Errorf("unknown command %q", msg.Type)
	}
}

// drive runs a manual drive command at the engine's configured speed.
func (s *Server) drive(dir actuator.Direction) error {
	speed := 0
	if dir != actuator.Stop {
		speed = s.engine.Status().DriveSpeed
	}
	return s.act.Drive(dir, speed)
}

func (s *Server) applyFeedSettings(ctx context.Context, msg Message) (feed.Settings, error) {
	if s.feed == nil {
		return feed.Settings{}, errors.New("feeder not configured")
	}
	patch := feed.Patch{Interval: msg.Interval, Amount: msg.Amount}
	if msg.Mode != nil {
		mode := feed.Mode(strings.ToLower(*msg.Mode))
		patch.Mode = &mode
	}
	next, err := patch.Apply(s.feed.Settings())
	if err != nil {
		return feed.Settings{}, err
	}
	if s.store != nil {
		if err := s.store.SaveFeed(ctx, next); err != nil {
			return feed.Settings{}, err
		}
	}
	return next, s.feed.SetSettings(next)
}
