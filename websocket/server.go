package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"kinship/identity"
	"kinship/models"
	"kinship/utils"
)

const eventTimeout = 10 * time.Second

// Chat is the messaging behaviour behind inbound push events.
type Chat interface {
	SendMessage(ctx context.Context, senderID, conversationID, content, recipientID string) (*models.MessageResponse, error)
	Typing(ctx context.Context, userID, conversationID, recipientID string, typing bool) error
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

type Options struct {
	EventsPerSecond float64
	EventBurst      int
	AllowedOrigins  []string
}

// Server authenticates websocket handshakes and dispatches inbound events.
type Server struct {
	hub      *Hub
	gateway  identity.Gateway
	chat     Chat
	validate *validator.Validate
	log      *zap.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, gateway identity.Gateway, chat Chat, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		hub:      hub,
		gateway:  gateway,
		chat:     chat,
		validate: validate,
		log:      log,
		opts:     opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and binds the connection to the user
// named by the token in the "token" query param or the Authorization header.
// A bad token still gets upgraded so it can receive an unauthorized error
// event before the connection is closed.
func (s *Server) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = identity.BearerToken(c.GetHeader("Authorization"))
	}
	userID, authErr := s.gateway.Verify(token)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if authErr != nil {
		s.reject(conn)
		return
	}

	var limiter *rate.Limiter
	if s.opts.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.EventsPerSecond), s.opts.EventBurst)
	}
	client := newClient(s.hub, conn, userID, limiter)
	s.hub.Join(client)
	s.log.Debug("websocket connected", zap.String("user_id", userID), zap.String("client_id", client.ID))

	go client.writePump()
	go client.readPump(s.log, s.handle)
}

func (s *Server) reject(conn *websocket.Conn) {
	defer conn.Close()
	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	conn.WriteJSON(&Message{
		Event: models.EventError,
		Data:  &models.ErrorPayload{Code: "unauthorized", Message: "invalid or missing token"},
	})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"), deadline)
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sendMessageEvent struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
	RecipientID    string `json:"recipient_id"`
}

type typingEvent struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	RecipientID    string `json:"recipient_id"`
}

type markReadEvent struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

func (s *Server) handle(c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
		c.sendError("bad_request", "malformed event", "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch in.Event {
	case models.EventPing:
		c.reply(models.EventPong, nil)
		return
	case models.EventSendMessage:
		var ev sendMessageEvent
		if err = s.decode(in.Data, &ev); err == nil {
			_, err = s.chat.SendMessage(ctx, c.UserID, ev.ConversationID, ev.Content, ev.RecipientID)
		}
	case models.EventTyping, models.EventStopTyping:
		var ev typingEvent
		if err = s.decode(in.Data, &ev); err == nil {
			err = s.chat.Typing(ctx, c.UserID, ev.ConversationID, ev.RecipientID, in.Event == models.EventTyping)
		}
	case models.EventMarkRead:
		var ev markReadEvent
		if err = s.decode(in.Data, &ev); err == nil {
			_, err = s.chat.MarkRead(ctx, ev.ConversationID, c.UserID)
		}
	default:
		c.sendError("unknown_event", "unknown event "+in.Event, in.Event)
		return
	}

	if err != nil {
		s.fail(c, in.Event, err)
	}
}

func (s *Server) decode(data json.RawMessage, dest interface{}) error {
	if len(data) == 0 {
		return utils.InvalidInput("missing event data")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return utils.InvalidInput("malformed event data")
	}
	if err := s.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return utils.InvalidInput(verrs[0].Field() + " is " + verrs[0].Tag())
		}
		return utils.InvalidInput("invalid event data")
	}
	return nil
}

// fail reports err to the connection that caused it. Other connections never see it.
func (s *Server) fail(c *Client, event string, err error) {
	code := errorCode(err)
	if code == "internal_error" {
		s.log.Error("push event failed",
			zap.String("event", event),
			zap.String("user_id", c.UserID),
			zap.Error(err),
		)
	}
	c.sendError(code, utils.Message(err), event)
}

func errorCode(err error) string {
	switch utils.Kind(err) {
	case utils.ErrUnauthorized:
		return "unauthorized"
	case utils.ErrForbidden:
		return "forbidden"
	case utils.ErrNotFound:
		return "not_found"
	case utils.ErrConflict:
		return "conflict"
	case utils.ErrInvalidInput:
		return "invalid_input"
	}
	return "internal_error"
}
