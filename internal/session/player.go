package session

// Close codes sent to connections the session drops.
const (
	CloseSwitchingConnections = 4001
	CloseSessionNotFound      = 4002
	CloseNotAllowed           = 4004

	closeGoingAway   = 1001
	closeSendFailure = 1011
)

// Conn is the session's handle on one client connection. Send must not
// block on a slow client.
type Conn interface {
	Send(msg any) error
	Close(code int, reason string) error
}

// Player is a connected participant. Its guess and score are only touched
// by the owning session's event loop.
type Player struct {
	username string
	conn     Conn

	guessed bool
	guess   string
	score   int
}

func NewPlayer(username string, conn Conn) *Player {
	return &Player{
		username: username,
		conn:     conn,
	}
}

func (p *Player) Username() string {
	return p.username
}

func (p *Player) Conn() Conn {
	return p.conn
}

func (p *Player) setGuess(guess string) {
	p.guessed = true
	p.guess = guess
}

func (p *Player) clearGuess() {
	p.guessed = false
	p.guess = ""
}

func (p *Player) view(host *Player, withGuess bool) PlayerView {
	v := PlayerView{
		Username:   p.username,
		HasGuessed: p.guessed,
		Score:      p.score,
		IsHost:     p == host,
	}

	if withGuess {
		guess := "No guess"
		if p.guessed {
			guess = p.guess
		}
		v.Guess = &guess
	}

	return v
}
