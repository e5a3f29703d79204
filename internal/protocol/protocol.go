// Package protocol implements the textual line protocol xlimdb speaks over
// TCP: a verb, whitespace-separated arguments, and for INSERT/UPDATE/PATCH a
// JSON payload that runs to the end of the command.
package protocol

import (
	"regexp"
	"strings"
)

// Request is one parsed client command.
type Request struct {
	Verb string
	Args []string
	// TxID is set when the command was suffixed with "TX <uuid>", routing
	// a mutating command into a buffered transaction instead of applying
	// it auto-commit.
	TxID string
}

var txSuffix = regexp.MustCompile(`(?i)\s+TX\s+([0-9a-fA-F-]{36})\s*$`)

// ParseRequest splits a raw command line into a verb and its arguments. The
// payload-bearing commands (INSERT, UPDATE, PATCH, SET-META) keep their
// trailing JSON argument intact rather than tokenizing it, since JSON
// contains spaces. A trailing "TX <uuid>" suffix is stripped first and
// reported separately via Request.TxID.
func ParseRequest(line string) Request {
	line = strings.TrimRight(line, "\r\n")

	var txID string
	if m := txSuffix.FindStringSubmatchIndex(line); m != nil {
		txID = line[m[2]:m[3]]
		line = line[:m[0]]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{TxID: txID}
	}
	verb := strings.ToUpper(fields[0])

	maxArgs := payloadSplit(verb)
	if maxArgs <= 0 || len(fields) <= maxArgs+1 {
		return Request{Verb: verb, Args: fields[1:], TxID: txID}
	}

	// Re-split preserving the payload: first maxArgs tokens after the verb
	// are plain arguments, everything after is one joined payload argument.
	rest := strings.TrimSpace(line[len(fields[0]):])
	args := make([]string, 0, maxArgs+1)
	for i := 0; i < maxArgs; i++ {
		rest = strings.TrimLeft(rest, " \t")
		sp := strings.IndexAny(rest, " \t")
		if sp < 0 {
			args = append(args, rest)
			rest = ""
			break
		}
		args = append(args, rest[:sp])
		rest = rest[sp:]
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		args = append(args, rest)
	}
	return Request{Verb: verb, Args: args, TxID: txID}
}

// payloadSplit returns how many plain (non-payload) arguments precede a
// command's trailing JSON blob, or 0 if the command has no JSON payload.
func payloadSplit(verb string) int {
	switch verb {
	case "INSERT":
		return 1 // INSERT <coll> <json>
	case "UPDATE":
		return 1 // UPDATE <coll> <json>
	case "PATCH":
		return 2 // PATCH <coll> <id> <json-ops>
	case "SET-META":
		return 2 // SET-META <coll> <key> <json-value>
	default:
		return 0
	}
}

// OK formats a plain success line.
func OK(msg string) string {
	return msg + "\n"
}

// Errorf formats an ERROR: reply line.
func Errorf(msg string) string {
	return "ERROR: " + msg + "\n"
}
