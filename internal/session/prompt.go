package session

import (
	"time"

	"github.com/Seednode/gitgame/internal/chunk"
	"github.com/Seednode/gitgame/internal/file"
	"github.com/Seednode/gitgame/internal/github"
)

// Prompt is the payload of one round.
type Prompt struct {
	chunk      *chunk.Chunk
	choices    []string
	correct    string
	expiration time.Time
	file       file.File
}

func (p *Prompt) Choices() []string {
	return append([]string(nil), p.choices...)
}

func (p *Prompt) Correct() string {
	return p.correct
}

func (p *Prompt) Expiration() time.Time {
	return p.expiration
}

func (p *Prompt) message(round, remainingPeeks int) PromptMessage {
	return PromptMessage{
		Type:            TypePrompt,
		Round:           round,
		Chunk:           p.chunk.View(),
		Choices:         p.Choices(),
		GuessExpiration: p.expiration,
		RemainingPeeks:  remainingPeeks,
	}
}

func (p *Prompt) fileView() FileView {
	v := FileView{
		Path: p.file.Path(),
		Name: p.file.Filename(),
	}

	if repo := p.file.Repo(); repo != nil {
		v.Repository = repo
		v.VisitURL = github.VisitURL(repo.URL, repo.DefaultBranch, p.file.Path())
	}

	return v
}
