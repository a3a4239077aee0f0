package api

import (
	"sync"
	"time"

	"bikedash/internal/models"
	"bikedash/internal/session"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// Websocket command ops.
const (
	opSetX     = "set_x"
	opSetY     = "set_y"
	opSetRange = "set_range"
	opSetPlot  = "set_plot"
	opApply    = "apply"
)

type wsCommand struct {
	Op       string        `json:"op" validate:"required,oneof=set_x set_y set_range set_plot apply"`
	Column   string        `json:"column,omitempty"`
	Start    string        `json:"start,omitempty"`
	End      string        `json:"end,omitempty"`
	PlotType string        `json:"plot_type,omitempty"`
	Update   *models.Update `json:"update,omitempty"`
}

type wsMessage struct {
	Type  string         `json:"type"`
	Data  *models.Render `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// wsClient bridges one websocket connection and one session subscription.
type wsClient struct {
	h       *Handler
	conn    *websocket.Conn
	sess    *session.Session
	renders <-chan models.Render
	errs    chan string
	done    chan struct{}
	logger  zerolog.Logger
}

// Stream upgrades to a websocket that pushes every published render of the
// session and accepts selection commands.
func (h *Handler) Stream(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	renders, cancel, err := s.Subscribe()
	if err != nil {
		return err
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug().Err(err).Str("session_id", s.ID()).Msg("websocket upgrade failed")
		return nil
	}

	cl := &wsClient{
		h:       h,
		conn:    conn,
		sess:    s,
		renders: renders,
		errs:    make(chan string, 8),
		done:    make(chan struct{}),
		logger:  h.logger.With().Str("session_id", s.ID()).Str("remote_addr", c.RealIP()).Logger(),
	}
	cl.logger.Info().Msg("websocket connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cl.writePump()
	}()
	cl.readPump()
	close(cl.done)
	wg.Wait()
	cl.logger.Info().Msg("websocket disconnected")
	return nil
}

func (cl *wsClient) readPump() {
	defer cl.conn.Close()
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.sess.Touch()
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.logger.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		if err := cl.handle(message); err != nil {
			if errors.Is(err, session.ErrSuperseded) {
				continue
			}
			if errors.Is(err, session.ErrClosed) {
				return
			}
			cl.sendError(toError(err).Message)
		}
	}
}

func (cl *wsClient) handle(message []byte) error {
	var cmd wsCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		return badRequest("invalid command: "+err.Error(), err)
	}
	if err := cl.h.validate.Struct(cmd); err != nil {
		return err
	}
	u, err := cmd.update()
	if err != nil {
		return err
	}
	if err := cl.h.validate.Struct(u); err != nil {
		return err
	}
	// the render reaches this client through its subscription
	_, err = cl.sess.Apply(u)
	return err
}

func (cmd wsCommand) update() (models.Update, error) {
	switch cmd.Op {
	case opSetX:
		return models.Update{X: &cmd.Column}, nil
	case opSetY:
		return models.Update{Y: &cmd.Column}, nil
	case opSetRange:
		start, end, err := rangeRequest{Start: cmd.Start, End: cmd.End}.days()
		if err != nil {
			return models.Update{}, err
		}
		return models.Update{Start: &start, End: &end}, nil
	case opSetPlot:
		pt := models.PlotType(cmd.PlotType)
		return models.Update{PlotType: &pt}, nil
	case opApply:
		if cmd.Update == nil || cmd.Update.Empty() {
			return models.Update{}, badRequest("apply needs a non-empty update", nil)
		}
		return *cmd.Update, nil
	}
	return models.Update{}, badRequest("unknown op "+cmd.Op, nil)
}

func (cl *wsClient) sendError(msg string) {
	select {
	case cl.errs <- msg:
	default:
		cl.logger.Warn().Str("error", msg).Msg("dropping websocket error, client is slow")
	}
}

func (cl *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case r, ok := <-cl.renders:
			if !ok {
				// session closed
				_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = cl.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := cl.write(wsMessage{Type: "render", Data: &r}); err != nil {
				return
			}
		case msg := <-cl.errs:
			if err := cl.write(wsMessage{Type: "error", Error: msg}); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-cl.done:
			return
		}
	}
}

func (cl *wsClient) write(m wsMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		cl.logger.Error().Err(err).Msg("encode websocket message")
		return err
	}
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		cl.logger.Debug().Err(err).Msg("websocket write failed")
		return err
	}
	return nil
}
