// Package graph resolves free-text names against the curated case
// participants and builds the weighted relationship graph.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/scrypster/casefile/internal/config"
)

var (
	punctRe = regexp.MustCompile(`[^\w\s]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases a name, strips punctuation, and collapses runs of
// whitespace. It is idempotent.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = punctRe.ReplaceAllString(name, "")
	name = spaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// MakeID derives the stable node identifier for a name: the first 12 hex
// characters of the SHA-256 of its normalized form. Cross-run stability is
// relied upon by callers, so this must never become random.
func MakeID(name string) string {
	sum := sha256.Sum256([]byte(Normalize(name)))
	return hex.EncodeToString(sum[:])[:12]
}

// Resolver matches free-text names to curated primary participants.
type Resolver struct {
	participants []config.Participant

	byNorm  map[string]string // normalized primary name -> display name
	byAlias map[string]string // normalized alias -> display name
}

// NewResolver builds a resolver from the profile participants.
func NewResolver(participants []config.Participant) *Resolver {
	r := &Resolver{
		participants: participants,
		byNorm:       map[string]string{},
		byAlias:      map[string]string{},
	}
	for _, p := range participants {
		r.byNorm[Normalize(p.Name)] = p.Name
		for _, a := range p.Aliases {
			r.byAlias[Normalize(a)] = p.Name
		}
	}
	return r
}

// Participants returns the curated participant list.
func (r *Resolver) Participants() []config.Participant {
	return r.participants
}

// MatchPrimary resolves a name to a primary participant's display name.
// Resolution order: exact normalized match, alias match, then a conservative
// partial match requiring every token of the participant's name to appear in
// the input. A bare last name is rejected as too ambiguous.
func (r *Resolver) MatchPrimary(name string) (string, bool) {
	norm := Normalize(name)
	if len(norm) < 3 {
		return "", false
	}

	if display, ok := r.byNorm[norm]; ok {
		return display, true
	}
	if display, ok := r.byAlias[norm]; ok {
		return display, true
	}

	for _, p := range r.participants {
		parts := strings.Fields(Normalize(p.Name))
		if len(parts) < 2 {
			continue
		}
		last := parts[len(parts)-1]
		if norm == last && len(last) > 3 {
			continue
		}
		all := true
		for _, part := range parts {
			if !strings.Contains(norm, part) {
				all = false
				break
			}
		}
		if all {
			return p.Name, true
		}
	}
	return "", false
}
