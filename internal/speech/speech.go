package speech

import "github.com/rs/zerolog"

// Pronouncer vocalizes text for a player. Calls are fire-and-forget: no
// return value, no ordering guarantee, and implementations may silently do
// nothing where audio is unsupported.
type Pronouncer interface {
	Pronounce(text string)
}

// Nop is a Pronouncer for environments without audio.
type Nop struct{}

func (Nop) Pronounce(string) {}

// Logged wraps a Pronouncer and records each utterance at debug level.
type Logged struct {
	Next   Pronouncer
	Logger zerolog.Logger
}

func (l Logged) Pronounce(text string) {
	l.Logger.Debug().Str("text", text).Msg("pronounce")
	if l.Next != nil {
		l.Next.Pronounce(text)
	}
}

// Func adapts a function to the Pronouncer interface.
type Func func(text string)

func (f Func) Pronounce(text string) { f(text) }
