package ws

import "encoding/json"

// MessageType constants for the arena WebSocket protocol.
const (
	// Client -> Server
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeStartMatch   = "start_match"
	TypeCancelRoom   = "cancel_room"
	TypeSubmitAnswer = "submit_answer"
	TypeReplayAudio  = "replay_audio"
	TypePing         = "ping"

	// Server -> Client
	TypeMatchSnapshot = "match_snapshot"
	TypeMatchResult   = "match_result"
	TypeMatchGone     = "match_gone"
	TypeAnswerAck     = "answer_ack"
	TypeSpeak         = "speak"
	TypeError         = "error"
	TypePong          = "pong"
)

// Message wraps all WebSocket payloads with a type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client Messages (incoming)

type JoinRoomPayload struct {
	RoomCode string `json:"room_code"`
}

type StartMatchPayload struct {
	MatchID string `json:"match_id"`
}

type CancelRoomPayload struct {
	MatchID string `json:"match_id"`
}

type SubmitAnswerPayload struct {
	OptionIndex *int   `json:"option_index,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Server Messages (outgoing)

// PlayerView is the public view of one player.
type PlayerView struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// QuestionView is the active question without its answer key.
type QuestionView struct {
	Kind          string   `json:"kind"`
	Text          string   `json:"text"`
	Options       []string `json:"options,omitempty"`
	AudioWord     string   `json:"audio_word,omitempty"`
	AudioSentence string   `json:"audio_sentence,omitempty"`
}

// MatchSnapshotPayload is the full public state pushed on every observed
// commit of a non-finished match.
type MatchSnapshotPayload struct {
	MatchID   string        `json:"match_id"`
	RoomCode  string        `json:"room_code"`
	Status    string        `json:"status"`
	Player1   PlayerView    `json:"player1"`
	Player2   *PlayerView   `json:"player2,omitempty"`
	QIndex    int           `json:"q_index"`
	QuestionN int           `json:"question_count"`
	Question  *QuestionView `json:"question,omitempty"`
}

// MatchResultPayload is the terminal outcome from the recipient's point of
// view.
type MatchResultPayload struct {
	MatchID       string `json:"match_id"`
	Outcome       string `json:"outcome"` // win | loss | tie
	MyScore       int    `json:"my_score"`
	OpponentScore int    `json:"opponent_score"`
}

// AnswerAckPayload reports how a submission resolved.
type AnswerAckPayload struct {
	Outcome string `json:"outcome"` // committed | incorrect | too_late | locked
	QIndex  int    `json:"q_index"`
}

// SpeakPayload carries text for the client to vocalize.
type SpeakPayload struct {
	Text string `json:"text"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
