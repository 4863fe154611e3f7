/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
	"github.com/Seednode/gitgame/internal/metrics"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrNotHost      = errors.New("only the host can do that")
	ErrInvalidState = errors.New("that can't be done right now")
)

type State int

const (
	NewlyCreated State = iota
	InLobby
	InGuessing
	DoneGuessing
	OutOfChunks
)

func (s State) String() string {
	switch s {
	case NewlyCreated:
		return "newly_created"
	case InLobby:
		return "in_lobby"
	case InGuessing:
		return "in_guessing"
	case DoneGuessing:
		return "done_guessing"
	case OutOfChunks:
		return "out_of_chunks"
	}
	return "unknown"
}

const (
	DefaultMaxChoices = 4
	DefaultGuessTime  = 60 * time.Second
	DefaultPeekPeriod = 8 * time.Second
)

// Rand is the subset of math/rand/v2 the session draws from.
type Rand interface {
	IntN(n int) int
	Perm(n int) []int
	Shuffle(n int, swap func(i, j int))
}

type Options struct {
	// Sources builds the file source for a newly tracked author.
	Sources func(author string) file.Source
	Pool    *file.Pool
	Fetcher chunk.Fetcher
	Rand    Rand

	MaxChoices int
	GuessTime  time.Duration
	PeekPeriod time.Duration

	Now  func() time.Time
	Logf func(format string, args ...any)

	// OnEmpty runs on the event loop once the last player leaves a session
	// that has been joined at least once.
	OnEmpty func(id string)
}

// Info is a snapshot of a session, readable while the event loop is busy.
type Info struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Host       string    `json:"host,omitempty"`
	Players    []string  `json:"players"`
	Authors    []string  `json:"authors"`
	Round      int       `json:"round"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type event struct {
	name string
	fn   func(ctx context.Context)
	done chan struct{}
}

type delivery struct {
	to  []*Player
	msg any
}

// Session is one game. Every mutation happens on the goroutine running Run,
// one event at a time; the exported methods hand work to that goroutine and
// wait for it to finish, broadcasts included.
type Session struct {
	id   string
	opts Options
	logf func(format string, args ...any)

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	pool        *file.Pool
	fetcher     chunk.Fetcher
	players     []*Player
	host        *Player
	prompt      *Prompt
	lastReveal  *RevealMessage
	state       State
	round       int
	cancelTimer context.CancelFunc
	outbox      []delivery

	mu   sync.RWMutex
	info Info
}

func New(id string, opts Options) *Session {
	if opts.MaxChoices <= 0 {
		opts.MaxChoices = DefaultMaxChoices
	}
	if opts.GuessTime <= 0 {
		opts.GuessTime = DefaultGuessTime
	}
	if opts.PeekPeriod <= 0 {
		opts.PeekPeriod = DefaultPeekPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Pool == nil {
		opts.Pool = file.NewPool(file.NewPicker(opts.Rand), opts.Logf)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = chunk.NewWindowFetcher(chunk.DefaultStartingSize, chunk.DefaultPeekSize, chunk.DefaultPeeks, opts.Logf)
	}

	now := opts.Now()

	return &Session{
		id:      id,
		opts:    opts,
		logf:    opts.Logf,
		events:  make(chan event),
		done:    make(chan struct{}),
		pool:    opts.Pool,
		fetcher: opts.Fetcher,
		info: Info{
			ID:         id,
			State:      NewlyCreated.String(),
			Players:    []string{},
			Authors:    []string{},
			CreatedAt:  now,
			LastActive: now,
		},
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := s.info
	info.Players = slices.Clone(s.info.Players)
	info.Authors = slices.Clone(s.info.Authors)

	return info
}

// Run processes events until ctx ends or Close is called.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// Close stops the event loop. It never blocks.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) shutdown() {
	s.Close()
	s.stopTimer()

	for _, p := range s.players {
		_ = p.conn.Close(closeGoingAway, "session ended")
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	if ev.done != nil {
		defer close(ev.done)
	}

	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logf("ERROR: Session [%s]; %s failed: %v", s.id, ev.name, r)
			s.outbox = nil
			s.outOfChunks()
		}

		s.flush()
		s.publish()

		metrics.TransitionDuration.WithLabelValues(ev.name).Observe(time.Since(startTime).Seconds())
	}()

	ev.fn(ctx)
}

// do runs fn on the event loop and waits for it to complete.
func (s *Session) do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	ev := event{
		name: name,
		fn:   fn,
		done: make(chan struct{}),
	}

	select {
	case s.events <- ev:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-ev.done

	return nil
}

// post queues fn without waiting. It gives up once ctx ends.
func (s *Session) post(ctx context.Context, name string, fn func(ctx context.Context)) bool {
	select {
	case s.events <- event{name: name, fn: fn}:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Setup registers the authors chosen at creation time.
func (s *Session) Setup(ctx context.Context, authors []string) error {
	return s.do(ctx, "setup", func(ctx context.Context) {
		for _, author := range authors {
			s.addAuthor(ctx, author)
		}
	})
}

func (s *Session) Connect(ctx context.Context, p *Player) error {
	return s.do(ctx, "connect", func(ctx context.Context) {
		s.connect(ctx, p)
	})
}

func (s *Session) Disconnect(ctx context.Context, p *Player) error {
	return s.do(ctx, "disconnect", func(context.Context) {
		s.disconnect(p)
	})
}

// Handle applies one client event from p. Unknown events are logged and
// dropped.
func (s *Session) Handle(ctx context.Context, p *Player, msg ClientMessage) error {
	name := msg.Type
	if !slices.Contains([]string{EventStartGame, EventNextRound, EventGuess}, name) {
		name = "unknown"
	}

	return s.do(ctx, name, func(ctx context.Context) {
		if !slices.Contains(s.players, p) {
			return
		}

		switch msg.Type {
		case EventStartGame:
			s.startGame(ctx, p)
		case EventNextRound:
			s.nextRound(ctx, p)
		case EventGuess:
			s.guess(p, msg.Value)
		default:
			s.logf("SESSION: Session [%s]; ignoring unknown event %q from %q", s.id, msg.Type, p.username)
		}
	})
}

func (s *Session) addAuthor(ctx context.Context, author string) {
	if s.pool.HasAuthor(author) {
		return
	}

	if err := s.pool.AddAuthor(ctx, author, s.opts.Sources(author)); err != nil {
		s.logf("SESSION: Session [%s]; unable to load files for %q: %v", s.id, author, err)
	}
}

func (s *Session) find(username string) int {
	return slices.IndexFunc(s.players, func(p *Player) bool {
		return p.username == username
	})
}

func (s *Session) connect(ctx context.Context, p *Player) {
	if i := s.find(p.username); i >= 0 {
		old := s.players[i]
		if old == p {
			return
		}

		p.guessed, p.guess, p.score = old.guessed, old.guess, old.score
		s.players[i] = p
		if s.host == old {
			s.host = p
		}

		_ = old.conn.Close(CloseSwitchingConnections, "You connected elsewhere. Refresh to connect at this location.")

		s.logf("SESSION: Session [%s]; %q switched connections", s.id, p.username)
	} else {
		s.players = append(s.players, p)

		s.logf("SESSION: Session [%s]; %q joined", s.id, p.username)
	}

	if s.host == nil {
		s.host = p
		if s.state == NewlyCreated {
			s.state = InLobby
		}
	}

	s.addAuthor(ctx, p.username)

	s.broadcastLobby()
	s.broadcast(AlertMessage{Type: TypeAlert, Message: p.username + " has joined"})

	switch s.state {
	case InGuessing:
		s.sendTo(p, s.promptMessage())
	case DoneGuessing:
		if s.lastReveal != nil {
			s.sendTo(p, *s.lastReveal)
		}
	case OutOfChunks:
		s.sendTo(p, outOfChunksMessage())
	}
}

func (s *Session) disconnect(p *Player) {
	i := slices.Index(s.players, p)
	if i < 0 {
		return
	}

	s.players = slices.Delete(s.players, i, i+1)

	s.logf("SESSION: Session [%s]; %q left", s.id, p.username)

	if s.host == p {
		s.host = nil
		if len(s.players) > 0 {
			s.host = s.players[s.opts.Rand.IntN(len(s.players))]
			s.broadcast(HostChangeMessage{Type: TypeHostChange, Host: s.host.username})

			s.logf("SESSION: Session [%s]; %q is now host", s.id, s.host.username)
		}
	}

	s.broadcastLobby()
	s.broadcast(AlertMessage{Type: TypeAlert, Message: p.username + " has left"})

	if s.state == InGuessing && s.allGuessed() {
		s.reveal("all_guessed")
	}

	if len(s.players) == 0 && s.state != NewlyCreated && s.opts.OnEmpty != nil {
		s.opts.OnEmpty(s.id)
	}
}

func (s *Session) allGuessed() bool {
	for _, p := range s.players {
		if !p.guessed {
			return false
		}
	}
	return true
}

func (s *Session) lobbyMessage() LobbyMessage {
	players := make([]PlayerView, len(s.players))
	for i, p := range s.players {
		players[i] = p.view(s.host, false)
	}

	msg := LobbyMessage{
		Type:    TypeLobby,
		State:   s.state.String(),
		Players: players,
	}
	if s.host != nil {
		msg.Host = s.host.username
	}

	return msg
}

func (s *Session) broadcastLobby() {
	s.broadcast(s.lobbyMessage())
}

// broadcast queues msg for every player connected right now. Queued
// messages go out together once the current event has been handled.
func (s *Session) broadcast(msg any) {
	if len(s.players) == 0 {
		return
	}

	s.outbox = append(s.outbox, delivery{
		to:  slices.Clone(s.players),
		msg: msg,
	})
}

func (s *Session) sendTo(p *Player, msg any) {
	s.outbox = append(s.outbox, delivery{
		to:  []*Player{p},
		msg: msg,
	})
}

func (s *Session) reject(p *Player, reason string) {
	s.sendTo(p, ErrorMessage{Type: TypeError, Message: reason})
}

// flush sends queued messages. A connection that fails a send is closed so
// its reader reports the disconnect, and receives nothing further from this
// flush.
func (s *Session) flush() {
	outbox := s.outbox
	s.outbox = nil

	failed := make(map[*Player]bool)

	for _, d := range outbox {
		for _, p := range d.to {
			if failed[p] {
				continue
			}

			if err := p.conn.Send(d.msg); err != nil {
				failed[p] = true

				s.logf("SESSION: Session [%s]; dropping %q: %v", s.id, p.username, err)
			}
		}
	}

	for p := range failed {
		_ = p.conn.Close(closeSendFailure, "unable to deliver messages")
	}
}

func (s *Session) publish() {
	players := make([]string, len(s.players))
	for i, p := range s.players {
		players[i] = p.username
	}

	host := ""
	if s.host != nil {
		host = s.host.username
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.State = s.state.String()
	s.info.Host = host
	s.info.Players = players
	s.info.Authors = s.pool.Authors()
	s.info.Round = s.round
	s.info.LastActive = s.opts.Now()
}
