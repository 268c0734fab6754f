package conflict

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how a server-reported conflict is settled.
type Strategy string

const (
	ServerWins Strategy = "server_wins" // default
	ClientWins Strategy = "client_wins"
	Merge      Strategy = "merge"
	Manual     Strategy = "manual"
)

// ErrUnknownStrategy is returned for strategy names outside the four above.
var ErrUnknownStrategy = errors.New("unknown conflict strategy")

// AllStrategies returns the valid strategies in display order.
func AllStrategies() []Strategy {
	return []Strategy{ServerWins, ClientWins, Merge, Manual}
}

// IsValid reports whether s is a known strategy
func (s Strategy) IsValid() bool {
	switch s {
	case ServerWins, ClientWins, Merge, Manual:
		return true
	}
	return false
}

// ParseStrategy accepts "server_wins", "server-wins" or "server" style names.
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch norm {
	case "server_wins", "server":
		return ServerWins, nil
	case "client_wins", "client":
		return ClientWins, nil
	case "merge":
		return Merge, nil
	case "manual":
		return Manual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}
