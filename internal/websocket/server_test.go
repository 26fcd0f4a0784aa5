package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/actuator/actuatortest"
	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/feed"
)

type memStore struct{ saved []feed.Settings }

func (m *memStore) SaveFeed(_ context.Context, s feed.Settings) error {
	m.saved = append(m.saved, s)
	return nil
}

type fixture struct {
	srv    *Server
	http   *httptest.Server
	engine *autoplay.Engine
	rec    *actuatortest.Recorder
	store  *memStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{rec: &actuatortest.Recorder{}, store: &memStore{}}
	clock := clockwork.NewFakeClock()

	var err error
	f.engine, err = autoplay.New(autoplay.Options{
		Actuator:      f.rec,
		Clock:         clock,
		DebounceDelay: time.Hour,
		DriveSpeed:    40,
	})
	require.NoError(t, err)
	t.Cleanup(f.engine.Close)

	sched, err := feed.NewScheduler(f.rec, clock, feed.DefaultSettings())
	require.NoError(t, err)

	f.srv, err = NewServer(Options{
		Engine:   f.engine,
		Actuator: f.rec,
		Feed:     sched,
		Store:    f.store,
		Clock:    clock,
	})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/ws", f.srv.HandleWebSocket)
	f.http = httptest.NewServer(r)
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) Response {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var resp Response
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == TypeCommandResponse {
			return resp
		}
	}
}

func TestConnectionsDrivePresence(t *testing.T) {
	f := newFixture(t)

	a := f.dial(t)
	b := f.dial(t)
	require.Eventually(t, func() bool {
		return f.engine.Status().ConnectedClients == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Nil(t, f.engine.Status().PendingDelaySeconds)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return f.engine.Status().ConnectedClients == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Nil(t, f.engine.Status().PendingDelaySeconds)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		st := f.engine.Status()
		return st.ConnectedClients == 0 && st.PendingDelaySeconds != nil
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, f.srv.Manager().GetConnectionCount())
}

func TestCommands(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	resp := roundTrip(t, conn, `{"type":"laser_on"}`)
	require.Equal(t, StatusSuccess, resp.Status)
	require.Equal(t, "laser_on", resp.Command)

	resp = roundTrip(t, conn, `{"type":"joystick","direction":"up"}`)
	require.Equal(t, StatusSuccess, resp.Status)
	require.Equal(t, "joystick_forward", resp.Command)

	resp = roundTrip(t, conn, "stop")
	require.Equal(t, StatusSuccess, resp.Status)

	resp = roundTrip(t, conn, `{"type":"pointer","x":10,"y":170}`)
	require.Equal(t, StatusSuccess, resp.Status)

	resp = roundTrip(t, conn, "sol")
	require.Equal(t, StatusSuccess, resp.Status)

	resp = roundTrip(t, conn, `{"type":"sound","name":"meow"}`)
	require.Equal(t, StatusSuccess, resp.Status)

	resp = roundTrip(t, conn, "reset")
	require.Equal(t, StatusSuccess, resp.Status)

	got := []string{}
	for _, c := range f.rec.Calls() {
		got = append(got, c.String())
	}
	require.Equal(t, []string{
		"laser(true)",
		"drive(forward,40)",
		"drive(stop,0)",
		"pointer(10,170)",
		"fire()",
		"sound(meow)",
		"center()",
	}, got)
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	cases := map[string]string{
		`{"type":"joystick","direction":"sideways"}`: "unknown direction",
		`{"type":"pointer","x":10}`:                  "needs x and y",
		`{"type":"pointer","x":10,"y":400}`:          "out of range",
		`{"type":"sound"}`:                           "needs a name",
		"moonwalk":                                   "unknown command",
		`{"type":"feed_now","amount":50}`:            "amount",
	}
	for frame, want := range cases {
		resp := roundTrip(t, conn, frame)
		require.Equal(t, StatusError, resp.Status, frame)
		require.Contains(t, resp.Message, want, frame)
	}
	require.Zero(t, f.rec.Len())
}

func TestFeedCommands(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	resp := roundTrip(t, conn, "feed_now")
	require.Equal(t, StatusSuccess, resp.Status)
	require.Equal(t, 1, f.rec.Count("feed"))

	resp = roundTrip(t, conn, `{"mode":"auto","interval":30,"amount":2}`)
	require.Equal(t, StatusSuccess, resp.Status)
	require.Equal(t, "feed_settings", resp.Command)
	require.Equal(t, []feed.Settings{{Mode: feed.ModeAuto, Interval: 30, Amount: 2}}, f.store.saved)

	resp = roundTrip(t, conn, "feed_now")
	require.Equal(t, StatusError, resp.Status)
	require.Contains(t, resp.Message, "auto mode")
	require.Equal(t, 1, f.rec.Count("feed"))
}

func TestStatusCommandAndBroadcast(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	resp := roundTrip(t, conn, `{"type":"status"}`)
	require.Equal(t, StatusSuccess, resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 1, data["connected_clients"])
	require.EqualValues(t, 40, data["drive_speed"])

	f.srv.BroadcastStatus(autoplay.Status{ConnectedClients: 7})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, TypeStatus, ev.Type)
	require.EqualValues(t, 7, ev.Data.(map[string]any)["connected_clients"])
}

func TestJoystickLogThrottle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newClient("x", nil, clock)

	require.True(t, c.shouldLog("joystick_left", true))
	require.False(t, c.shouldLog("joystick_left", true))
	require.True(t, c.shouldLog("joystick_right", true))
	require.True(t, c.shouldLog("laser_on", false))
	require.True(t, c.shouldLog("laser_on", false))

	require.True(t, c.shouldLog("joystick_left", true))
	clock.Advance(500 * time.Millisecond)
	require.False(t, c.shouldLog("joystick_left", true))
	clock.Advance(600 * time.Millisecond)
	require.True(t, c.shouldLog("joystick_left", true))
}

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer(Options{Actuator: actuator.NewSim(actuator.DefaultDriveTable())})
	require.Error(t, err)
}
