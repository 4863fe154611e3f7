package file

import (
	"path"
	"strings"
)

const DefaultMaxFileSize = 15000

var DefaultExtensions = []string{
	"py",
	"js",
	"ts",
	"jsx",
	"tsx",
	"go",
	"dart",
	"java",
	"cc",
	"cpp",
	"c",
	"swift",
}

// Rule decides whether a file is worth offering to players.
type Rule interface {
	Valid(f File) bool
}

type ExtensionRule struct {
	extensions map[string]bool
}

func NewExtensionRule(extensions []string) *ExtensionRule {
	r := &ExtensionRule{extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			r.extensions[ext] = true
		}
	}
	return r
}

// Valid treats dotfiles such as ".go" as having no extension.
func (r *ExtensionRule) Valid(f File) bool {
	base := path.Base(f.Path())

	ext := path.Ext(base)
	if ext == base {
		return false
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return ext != "" && r.extensions[ext]
}

// SizeRule rejects files larger than Max bytes. Zero disables the check.
type SizeRule struct {
	Max int64
}

func (r SizeRule) Valid(f File) bool {
	return r.Max <= 0 || f.Size() <= r.Max
}

// AllRules passes only files every rule accepts.
type AllRules []Rule

func (rules AllRules) Valid(f File) bool {
	for _, r := range rules {
		if !r.Valid(f) {
			return false
		}
	}
	return true
}
