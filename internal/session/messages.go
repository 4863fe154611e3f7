package session

import (
	"time"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
)

// Outbound message types.
const (
	TypeLobby       = "lobby"
	TypeHostChange  = "host_change"
	TypePrompt      = "prompt"
	TypePeek        = "peek"
	TypeReveal      = "reveal"
	TypeOutOfChunks = "out_of_chunks"
	TypeAlert       = "alert"
	TypeError       = "error"
)

// Inbound event types.
const (
	EventStartGame = "start_game"
	EventNextRound = "next_round"
	EventGuess     = "guess"
)

const (
	PeekAbove = "above"
	PeekBelow = "below"
)

// ClientMessage is an already-decoded inbound event.
type ClientMessage struct {
	Type  string `json:"type"`            // "start_game", "next_round", "guess"
	Value string `json:"value,omitempty"` // guess
}

type PlayerView struct {
	Username   string  `json:"username"`
	HasGuessed bool    `json:"has_guessed"`
	Score      int     `json:"score"`
	IsHost     bool    `json:"is_host"`
	Guess      *string `json:"guess,omitempty"`
}

type LobbyMessage struct {
	Type    string       `json:"type"` // "lobby"
	State   string       `json:"state"`
	Host    string       `json:"host,omitempty"`
	Players []PlayerView `json:"players"`
}

type HostChangeMessage struct {
	Type string `json:"type"` // "host_change"
	Host string `json:"host,omitempty"`
}

type PromptMessage struct {
	Type            string     `json:"type"` // "prompt"
	Round           int        `json:"round"`
	Chunk           chunk.View `json:"chunk"`
	Choices         []string   `json:"choices"`
	GuessExpiration time.Time  `json:"guess_expiration"`
	RemainingPeeks  int        `json:"remaining_peeks"`
}

type PeekMessage struct {
	Type           string     `json:"type"` // "peek"
	Round          int        `json:"round"`
	Direction      string     `json:"direction"`
	Chunk          chunk.View `json:"chunk"`
	RemainingPeeks int        `json:"remaining_peeks"`
}

type FileView struct {
	Path       string           `json:"path"`
	Name       string           `json:"name"`
	VisitURL   string           `json:"visit_url,omitempty"`
	Repository *file.Repository `json:"repository,omitempty"`
}

type RevealMessage struct {
	Type          string       `json:"type"` // "reveal"
	Round         int          `json:"round"`
	CorrectChoice string       `json:"correct_choice"`
	File          FileView     `json:"file"`
	Players       []PlayerView `json:"players"`
}

type OutOfChunksMessage struct {
	Type    string `json:"type"` // "out_of_chunks"
	Message string `json:"message"`
}

// AlertMessage is a human-readable notice such as a join or leave.
type AlertMessage struct {
	Type    string `json:"type"` // "alert"
	Message string `json:"message"`
}

// ErrorMessage is sent only to the connection whose action was refused.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
