package arena

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/langduel/vocab-arena/internal/metrics"
	"github.com/langduel/vocab-arena/internal/question"
	"github.com/langduel/vocab-arena/internal/vocab"
)

// Matchmaking failures surfaced synchronously to the caller. None of them
// mutate match state.
var (
	ErrInvalidRoomCode = errors.New("room code must be 6 characters")
	ErrRoomNotFound    = errors.New("no joinable room with that code")
	ErrSelfJoin        = errors.New("cannot join your own room")
	ErrNotAuthorized   = errors.New("only the room creator may do that")
	ErrNotReady        = errors.New("waiting for a second player")
	ErrRoomClosed      = errors.New("room is no longer cancellable")
)

// Service handles room creation, joining, starting and cancellation.
type Service struct {
	store     Store
	catalog   *vocab.Catalog
	generator *question.Generator
	logger    zerolog.Logger
}

// NewService creates the matchmaking service.
func NewService(store Store, catalog *vocab.Catalog, generator *question.Generator, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		generator: generator,
		logger:    logger,
	}
}

// CreateRoom generates a question sequence and a room code, and persists a
// new waiting match owned by the creator.
func (s *Service) CreateRoom(ctx context.Context, creatorUID uuid.UUID, creatorName string) (*Match, error) {
	questions, err := s.generator.Generate(s.catalog)
	if err != nil {
		return nil, err
	}

	code, err := s.generateRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	m := &Match{
		RoomCode:  code,
		Player1:   Player{UID: creatorUID, Name: creatorName},
		Status:    StatusWaiting,
		Questions: questions,
		QIndex:    0,
		CreatedAt: time.Now(),
	}

	if _, err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	metrics.RoomsCreated.Inc()
	s.logger.Info().
		Str("match_id", m.ID.String()).
		Str("room_code", code).
		Str("creator", creatorUID.String()).
		Msg("room created")
	return m, nil
}

// JoinRoom attaches a second player to the waiting match with the given
// code. The join commits through the conditional-update primitive so a
// concurrent join or start cannot be overwritten.
func (s *Service) JoinRoom(ctx context.Context, code string, joinerUID uuid.UUID, joinerName string) (*Match, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != RoomCodeLength {
		return nil, ErrInvalidRoomCode
	}

	candidates, err := s.store.Query(ctx, func(m *Match) bool {
		return m.RoomCode == code && m.Status == StatusWaiting
	})
	if err != nil {
		return nil, fmt.Errorf("lookup room: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrRoomNotFound
	}

	target := candidates[0]
	if target.Player1.UID == joinerUID {
		return nil, ErrSelfJoin
	}

	applied, err := s.store.ConditionalUpdate(ctx, target.ID,
		func(m *Match) bool {
			return m.Status == StatusWaiting && m.Player2 == nil
		},
		func(m *Match) {
			m.Player2 = &Player{UID: joinerUID, Name: joinerName}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	if !applied {
		// Someone else filled the seat between the lookup and the commit.
		return nil, ErrRoomNotFound
	}

	metrics.RoomsJoined.Inc()
	s.logger.Info().
		Str("match_id", target.ID.String()).
		Str("joiner", joinerUID.String()).
		Msg("player joined room")
	return s.store.Get(ctx, target.ID)
}

// StartMatch transitions a full room into playing. Only the creator may
// start, and only once a second player is seated.
func (s *Service) StartMatch(ctx context.Context, matchID uuid.UUID, requesterUID uuid.UUID) error {
	m, err := s.store.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Player1.UID != requesterUID {
		return ErrNotAuthorized
	}
	if m.Player2 == nil {
		return ErrNotReady
	}

	applied, err := s.store.ConditionalUpdate(ctx, matchID,
		func(m *Match) bool {
			return m.Status.CanTransition(StatusPlaying) && m.Player2 != nil
		},
		func(m *Match) {
			m.Status = StatusPlaying
		},
	)
	if err != nil {
		return fmt.Errorf("start match: %w", err)
	}
	if !applied {
		// Already started or otherwise past waiting; treat a concurrent
		// start as success.
		current, err := s.store.Get(ctx, matchID)
		if err != nil {
			return err
		}
		if current.Status == StatusPlaying {
			return nil
		}
		return ErrNotReady
	}

	s.logger.Info().Str("match_id", matchID.String()).Msg("match started")
	return nil
}

// CancelRoom deletes a waiting room that never got a second player. Only
// the creator may cancel; once a player joins or the match starts there is
// no cancellation path.
func (s *Service) CancelRoom(ctx context.Context, matchID uuid.UUID, requesterUID uuid.UUID) error {
	m, err := s.store.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Player1.UID != requesterUID {
		return ErrNotAuthorized
	}
	if m.Status != StatusWaiting || m.Player2 != nil {
		return ErrRoomClosed
	}

	if err := s.store.Delete(ctx, matchID); err != nil {
		return fmt.Errorf("cancel room: %w", err)
	}
	s.logger.Info().Str("match_id", matchID.String()).Msg("room cancelled")
	return nil
}

// FindActiveMatch returns the player's current non-finished match, if any.
// A player participates in at most one such match at a time.
func (s *Service) FindActiveMatch(ctx context.Context, uid uuid.UUID) (*Match, error) {
	matches, err := s.store.Query(ctx, func(m *Match) bool {
		return m.Status != StatusFinished && m.IsParticipant(uid)
	})
	if err != nil {
		return nil, fmt.Errorf("find active match: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// appendCodeChars maps random bytes onto the code alphabet, discarding draws
// past the largest multiple of the alphabet size so every character is
// equally likely. It stops once dst reaches RoomCodeLength characters.
func appendCodeChars(dst, src []byte) []byte {
	limit := byte(256 - 256%len(roomCodeAlphabet))
	for _, b := range src {
		if len(dst) >= RoomCodeLength {
			break
		}
		if b >= limit {
			continue
		}
		dst = append(dst, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
	}
	return dst
}

// generateRoomCode draws 6-char A-Z0-9 codes until one is unused among
// currently waiting rooms. Collisions with finished or deleted matches are
// acceptable, the code only has to be unambiguous for joiners right now.
func (s *Service) generateRoomCode(ctx context.Context) (string, error) {
	for {
		chars := make([]byte, 0, RoomCodeLength)
		for len(chars) < RoomCodeLength {
			var buf [RoomCodeLength * 2]byte
			if _, err := rand.Read(buf[:]); err != nil {
				return "", fmt.Errorf("generate room code: %w", err)
			}
			chars = appendCodeChars(chars, buf[:])
		}
		code := string(chars)

		waiting, err := s.store.Query(ctx, func(m *Match) bool {
			return m.RoomCode == code && m.Status == StatusWaiting
		})
		if err != nil {
			return "", fmt.Errorf("check room code: %w", err)
		}
		if len(waiting) == 0 {
			return code, nil
		}
	}
}
