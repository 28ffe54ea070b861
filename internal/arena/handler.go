package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/langduel/vocab-arena/internal/question"
	"github.com/langduel/vocab-arena/internal/speech"
	"github.com/langduel/vocab-arena/internal/vocab"
	httperrors "github.com/langduel/vocab-arena/pkg/http/errors"
	"github.com/langduel/vocab-arena/pkg/http/ws"
)

// Upgrader handles WebSocket upgrades for the arena endpoint.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is the embedding application's concern.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler accepts player connections and routes arena messages to the
// matchmaking service and each player's session.
type Handler struct {
	service *Service
	engine  *Engine
	store   Store
	hub     *ws.Hub
	results ResultSink
	logger  zerolog.Logger
}

// NewHandler creates the arena WebSocket handler. results may be nil.
func NewHandler(service *Service, engine *Engine, store Store, hub *ws.Hub, results ResultSink, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		engine:  engine,
		store:   store,
		hub:     hub,
		results: results,
		logger:  logger,
	}
}

// HandleWebSocket upgrades the request and runs the connection until the
// player goes away. Identity comes from the surrounding system via query
// parameters; there is no auth logic here.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	playerUID, err := uuid.Parse(r.URL.Query().Get("uid"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "uid query parameter must be a UUID")
		return
	}
	playerName := strings.TrimSpace(r.URL.Query().Get("name"))
	if playerName == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "name query parameter is required")
		return
	}

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.HandleConnection(r.Context(), conn, playerUID, playerName)
}

// HandleConnection wires a raw WebSocket connection into a session.
func (h *Handler) HandleConnection(ctx context.Context, conn *websocket.Conn, playerUID uuid.UUID, playerName string) {
	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.RegisterConnection(playerUID, wsConn)
	go wsConn.WritePump()

	session := NewClientSession(
		playerUID,
		h.engine,
		h.store,
		h.pronouncerFor(playerUID),
		&wsNotifier{hub: h.hub, playerUID: playerUID},
		h.results,
		h.logger,
	)

	// Resume an in-flight duel if the player already has one.
	if active, err := h.service.FindActiveMatch(ctx, playerUID); err != nil {
		h.logger.Warn().Err(err).Str("player", playerUID.String()).Msg("active match lookup failed")
	} else if active != nil {
		if err := session.Attach(ctx, active.ID); err != nil {
			h.logger.Warn().Err(err).Str("match_id", active.ID.String()).Msg("resume attach failed")
		}
	}

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(ctx, session, playerUID, playerName, msg)
	})

	session.Detach()
	h.hub.UnregisterConnection(playerUID, wsConn)
}

func (h *Handler) handleMessage(ctx context.Context, session *ClientSession, playerUID uuid.UUID, playerName string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeCreateRoom:
		return h.handleCreateRoom(ctx, session, playerUID, playerName)
	case ws.TypeJoinRoom:
		return h.handleJoinRoom(ctx, session, playerUID, playerName, msg.Payload)
	case ws.TypeStartMatch:
		return h.handleStartMatch(ctx, playerUID, msg.Payload)
	case ws.TypeCancelRoom:
		return h.handleCancelRoom(ctx, session, playerUID, msg.Payload)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(ctx, session, playerUID, msg.Payload)
	case ws.TypeReplayAudio:
		session.ReplayAudio()
		return nil
	case ws.TypePing:
		return h.hub.SendToPlayer(playerUID, ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
	default:
		return h.sendError(playerUID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleCreateRoom(ctx context.Context, session *ClientSession, playerUID uuid.UUID, playerName string) error {
	m, err := h.service.CreateRoom(ctx, playerUID, playerName)
	if err != nil {
		return h.sendError(playerUID, createErrorCode(err), err.Error())
	}
	return session.Attach(ctx, m.ID)
}

func (h *Handler) handleJoinRoom(ctx context.Context, session *ClientSession, playerUID uuid.UUID, playerName string, payload json.RawMessage) error {
	var req ws.JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeInvalidPayload, "Invalid join_room payload")
	}

	m, err := h.service.JoinRoom(ctx, req.RoomCode, playerUID, playerName)
	if err != nil {
		return h.sendError(playerUID, joinErrorCode(err), err.Error())
	}
	return session.Attach(ctx, m.ID)
}

func (h *Handler) handleStartMatch(ctx context.Context, playerUID uuid.UUID, payload json.RawMessage) error {
	var req ws.StartMatchPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeInvalidPayload, "Invalid start_match payload")
	}
	matchID, err := uuid.Parse(req.MatchID)
	if err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeInvalidPayload, "Invalid match ID")
	}

	if err := h.service.StartMatch(ctx, matchID, playerUID); err != nil {
		return h.sendError(playerUID, startErrorCode(err), err.Error())
	}
	return nil
}

func (h *Handler) handleCancelRoom(ctx context.Context, session *ClientSession, playerUID uuid.UUID, payload json.RawMessage) error {
	var req ws.CancelRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeInvalidPayload, "Invalid cancel_room payload")
	}
	matchID, err := uuid.Parse(req.MatchID)
	if err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeInvalidPayload, "Invalid match ID")
	}

	if err := h.service.CancelRoom(ctx, matchID, playerUID); err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeCancelFailed, err.Error())
	}
	return nil
}

func (h *Handler) handleSubmitAnswer(ctx context.Context, session *ClientSession, playerUID uuid.UUID, payload json.RawMessage) error {
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeInvalidPayload, "Invalid submit_answer payload")
	}

	sub := questionSubmission(req)
	snapshot := session.Match()
	qIndex := -1
	if snapshot != nil {
		qIndex = snapshot.QIndex
	}

	outcome, err := session.SubmitAnswer(ctx, sub)
	if err != nil {
		return h.sendError(playerUID, httperrors.ErrCodeSubmitFailed, err.Error())
	}

	ack := ws.AnswerAckPayload{Outcome: string(outcome), QIndex: qIndex}
	msg := ws.Message{Type: ws.TypeAnswerAck}
	msg.Payload, _ = json.Marshal(ack)
	return h.hub.SendToPlayer(playerUID, msg)
}

func (h *Handler) sendError(playerUID uuid.UUID, code, message string) error {
	errPayload := ws.ErrorPayload{Code: code, Message: message}
	msg := ws.Message{Type: ws.TypeError}
	msg.Payload, _ = json.Marshal(errPayload)
	return h.hub.SendToPlayer(playerUID, msg)
}

// pronouncerFor pushes speak events to the player's client; the actual
// audio playback is the client's concern and may be unsupported there.
func (h *Handler) pronouncerFor(playerUID uuid.UUID) speech.Pronouncer {
	return speech.Func(func(text string) {
		payload, _ := json.Marshal(ws.SpeakPayload{Text: text})
		if err := h.hub.SendToPlayer(playerUID, ws.Message{Type: ws.TypeSpeak, Payload: payload}); err != nil {
			h.logger.Debug().Err(err).Str("player", playerUID.String()).Msg("speak push skipped")
		}
	})
}

// wsNotifier renders match state into outgoing messages for one player.
type wsNotifier struct {
	hub       *ws.Hub
	playerUID uuid.UUID
}

func (n *wsNotifier) MatchSnapshot(m *Match) {
	snap := ws.MatchSnapshotPayload{
		MatchID:   m.ID.String(),
		RoomCode:  m.RoomCode,
		Status:    string(m.Status),
		Player1:   playerView(m.Player1),
		QIndex:    m.QIndex,
		QuestionN: len(m.Questions),
	}
	if m.Player2 != nil {
		pv := playerView(*m.Player2)
		snap.Player2 = &pv
	}
	if m.Status == StatusPlaying {
		if q, ok := m.CurrentQuestion(); ok {
			pub := q.Public()
			snap.Question = &ws.QuestionView{
				Kind:          string(pub.Kind),
				Text:          pub.Text,
				Options:       pub.Options,
				AudioWord:     pub.AudioWord,
				AudioSentence: pub.AudioSentence,
			}
		}
	}

	msg := ws.Message{Type: ws.TypeMatchSnapshot}
	msg.Payload, _ = json.Marshal(snap)
	n.hub.SendToPlayer(n.playerUID, msg)
}

func (n *wsNotifier) MatchFinished(m *Match, outcome Outcome) {
	mine, theirs := m.Scores(n.playerUID)
	payload := ws.MatchResultPayload{
		MatchID:       m.ID.String(),
		Outcome:       string(outcome),
		MyScore:       mine,
		OpponentScore: theirs,
	}
	msg := ws.Message{Type: ws.TypeMatchResult}
	msg.Payload, _ = json.Marshal(payload)
	n.hub.SendToPlayer(n.playerUID, msg)
}

func (n *wsNotifier) MatchGone() {
	n.hub.SendToPlayer(n.playerUID, ws.Message{Type: ws.TypeMatchGone})
}

func playerView(p Player) ws.PlayerView {
	return ws.PlayerView{UID: p.UID.String(), Name: p.Name, Score: p.Score}
}

func questionSubmission(req ws.SubmitAnswerPayload) question.Submission {
	sub := question.Submission{OptionIndex: -1, Text: req.Text}
	if req.OptionIndex != nil {
		sub.OptionIndex = *req.OptionIndex
	}
	return sub
}

func createErrorCode(err error) string {
	if errors.Is(err, vocab.ErrInsufficientVocabulary) {
		return httperrors.ErrCodeInsufficientVocabulary
	}
	return httperrors.ErrCodeRoomCreationFailed
}

func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoomCode):
		return httperrors.ErrCodeInvalidRoomCode
	case errors.Is(err, ErrRoomNotFound):
		return httperrors.ErrCodeRoomNotFound
	case errors.Is(err, ErrSelfJoin):
		return httperrors.ErrCodeSelfJoin
	default:
		return httperrors.ErrCodeJoinFailed
	}
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return httperrors.ErrCodeNotAuthorized
	case errors.Is(err, ErrNotReady):
		return httperrors.ErrCodeNotReady
	default:
		return httperrors.ErrCodeInternalError
	}
}
