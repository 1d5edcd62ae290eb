// Package idgen generates session ids: the owning agent's id followed by a
// short nanoid, so sessions of one agent share a common prefix.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Separator joins the agent id and the random part of a session id.
const Separator = "-"

// DefaultPrefix is used when the agent id is empty.
var DefaultPrefix = "its"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Generate returns a new session id with the default prefix.
func Generate() (string, error) {
	return ForAgent("")
}

// ForAgent returns a new session id owned by agentID.
func ForAgent(agentID string) (string, error) {
	if agentID == "" {
		agentID = DefaultPrefix
	}
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return agentID + Separator + id, nil
}

// Agent returns the agent prefix of a session id produced by ForAgent.
func Agent(sessionID string) string {
	i := strings.LastIndex(sessionID, Separator)
	if i < 0 {
		return sessionID
	}
	return sessionID[:i]
}
