package bot

import (
	"fmt"
	"strings"
)

// ParseLeagueArg extracts the league key or name from command arguments.
func ParseLeagueArg(args string) (string, error) {
	q := strings.Join(strings.Fields(args), " ")
	if q == "" {
		return "", fmt.Errorf("league key or name is required")
	}
	return q, nil
}

// ParseCallbackData splits inline button data into its action and argument.
// Data is either "action" or "action:arg".
func ParseCallbackData(data string) (action, arg string, ok bool) {
	action, arg, _ = strings.Cut(strings.TrimSpace(data), ":")
	if action == "" {
		return "", "", false
	}
	switch action {
	case cbToggleLeague:
		if arg == "" {
			return "", "", false
		}
	case cbConfirmLeague:
		if arg != "" {
			return "", "", false
		}
	default:
		return "", "", false
	}
	return action, arg, true
}
