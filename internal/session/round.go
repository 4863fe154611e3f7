package session

import (
	"context"
	"slices"
	"time"

	"github.com/Seednode/gitgame/internal/metrics"
)

const outOfChunksNotice = "There are no more code chunks to guess from. Start a new session to keep playing."

func outOfChunksMessage() OutOfChunksMessage {
	return OutOfChunksMessage{Type: TypeOutOfChunks, Message: outOfChunksNotice}
}

func (s *Session) startGame(ctx context.Context, p *Player) {
	switch {
	case p != s.host:
		s.reject(p, ErrNotHost.Error())
	case s.state != InLobby:
		s.reject(p, ErrInvalidState.Error())
	default:
		s.beginRound(ctx)
	}
}

func (s *Session) nextRound(ctx context.Context, p *Player) {
	switch {
	case p != s.host:
		s.reject(p, ErrNotHost.Error())
	case s.state != InGuessing && s.state != DoneGuessing:
		s.reject(p, ErrInvalidState.Error())
	default:
		s.beginRound(ctx)
	}
}

func (s *Session) guess(p *Player, value string) {
	if s.state != InGuessing || s.prompt == nil {
		s.reject(p, ErrInvalidState.Error())
		return
	}

	if !slices.Contains(s.prompt.choices, value) {
		s.reject(p, "\""+value+"\" is not one of this round's choices")
		return
	}

	p.setGuess(value)

	if s.allGuessed() {
		s.reveal("all_guessed")
		return
	}

	s.broadcastLobby()
}

func (s *Session) beginRound(ctx context.Context) {
	s.stopTimer()

	for _, p := range s.players {
		p.clearGuess()
	}

	s.prompt = nil
	s.lastReveal = nil

	prompt, ok := s.selectPrompt(ctx)
	if !ok {
		s.outOfChunks()
		return
	}

	s.prompt = prompt
	s.round++
	s.state = InGuessing

	metrics.RoundsStarted.Inc()

	s.logf("SESSION: Session [%s]; round %d started with %s", s.id, s.round, prompt.file.Path())

	s.broadcast(s.promptMessage())
	s.broadcastLobby()

	s.startTimer(ctx)
}

// selectPrompt draws files until one yields a usable chunk. Files that
// cannot be read or have nothing worth showing are dropped.
func (s *Session) selectPrompt(ctx context.Context) (*Prompt, bool) {
	for s.pool.CanPick() || s.pool.Replenish(ctx) {
		if ctx.Err() != nil {
			return nil, false
		}

		f, err := s.pool.Pick(ctx)
		if err != nil {
			break
		}

		c, err := s.fetcher.PickStartingChunk(ctx, f)
		if err != nil {
			metrics.ChunkFailures.Inc()

			s.logf("CHUNK: Session [%s]; skipping %s: %v", s.id, f.Path(), err)

			continue
		}

		return &Prompt{
			chunk:      c,
			choices:    s.choices(f.Author()),
			correct:    f.Author(),
			expiration: s.opts.Now().Add(s.opts.GuessTime),
			file:       f,
		}, true
	}

	return nil, false
}

// choices returns correct plus up to MaxChoices-1 other tracked authors,
// in random order.
func (s *Session) choices(correct string) []string {
	others := slices.DeleteFunc(s.pool.Authors(), func(a string) bool {
		return a == correct
	})

	choices := []string{correct}
	for _, i := range s.opts.Rand.Perm(len(others)) {
		if len(choices) >= s.opts.MaxChoices {
			break
		}

		choices = append(choices, others[i])
	}

	s.opts.Rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})

	return choices
}

func (s *Session) promptMessage() PromptMessage {
	return s.prompt.message(s.round, s.fetcher.RemainingPeeks())
}

func (s *Session) outOfChunks() {
	s.stopTimer()

	s.prompt = nil
	s.state = OutOfChunks

	s.logf("SESSION: Session [%s]; out of chunks", s.id)

	s.broadcast(outOfChunksMessage())
	s.broadcastLobby()
}

func (s *Session) startTimer(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelTimer = cancel

	go s.runTimer(ctx, s.round)
}

func (s *Session) stopTimer() {
	if s.cancelTimer != nil {
		s.cancelTimer()
		s.cancelTimer = nil
	}
}

// runTimer posts a tick every peek period until the guess time is used up.
// The last tick is final. Ticks carry their round so that a tick queued
// behind a reveal or a new round is recognized as stale.
func (s *Session) runTimer(ctx context.Context, round int) {
	remaining := s.opts.GuessTime

	for remaining > 0 {
		wait := min(s.opts.PeekPeriod, remaining)

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		remaining -= wait
		final := remaining <= 0

		if !s.post(ctx, "tick", func(context.Context) {
			s.tick(round, final)
		}) {
			return
		}
	}
}

func (s *Session) tick(round int, final bool) {
	if round != s.round || s.state != InGuessing {
		return
	}

	if final {
		s.reveal("timer")
		return
	}

	s.peek()
}

func (s *Session) peek() {
	var directions []string
	if s.fetcher.CanPeekAbove() {
		directions = append(directions, PeekAbove)
	}
	if s.fetcher.CanPeekBelow() {
		directions = append(directions, PeekBelow)
	}

	if len(directions) == 0 {
		return
	}

	direction := directions[s.opts.Rand.IntN(len(directions))]

	var ok bool
	if direction == PeekAbove {
		ok = s.fetcher.PeekAbove()
	} else {
		ok = s.fetcher.PeekBelow()
	}

	if !ok {
		return
	}

	s.prompt.chunk = s.fetcher.Chunk()

	s.broadcast(PeekMessage{
		Type:           TypePeek,
		Round:          s.round,
		Direction:      direction,
		Chunk:          s.prompt.chunk.View(),
		RemainingPeeks: s.fetcher.RemainingPeeks(),
	})
}

// reveal ends the current round. It is the only way out of InGuessing
// other than a new round, so it runs at most once per round.
func (s *Session) reveal(trigger string) {
	if s.state != InGuessing {
		return
	}

	s.stopTimer()

	if s.prompt == nil {
		s.logf("ERROR: Session [%s]; reveal with no live prompt", s.id)
		s.outOfChunks()
		return
	}

	s.state = DoneGuessing

	for _, p := range s.players {
		if p.guessed && p.guess == s.prompt.correct {
			p.score++
		}
	}

	players := make([]PlayerView, len(s.players))
	for i, p := range s.players {
		players[i] = p.view(s.host, true)
	}

	msg := RevealMessage{
		Type:          TypeReveal,
		Round:         s.round,
		CorrectChoice: s.prompt.correct,
		File:          s.prompt.fileView(),
		Players:       players,
	}
	s.lastReveal = &msg

	metrics.Reveals.WithLabelValues(trigger).Inc()

	s.logf("SESSION: Session [%s]; round %d revealed (%s)", s.id, s.round, trigger)

	s.broadcast(msg)
}
