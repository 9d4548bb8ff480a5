package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Script is a recorded set of oracle replies. Turns lists replies per turn
// uid; turns without an entry replay Default from its first reply.
//
//	default:
//	  - {action: final, final_answer: "unknown"}
//	turns:
//	  t1:
//	    - {action: query, sql: "SELECT COUNT(*) FROM students"}
//	    - '{"action": "final", "final_answer": "5"}'
//
// A reply is either a string sent verbatim or a mapping encoded as JSON.
type Script struct {
	Default []any            `yaml:"default"`
	Turns   map[string][]any `yaml:"turns"`
}

// ScriptedTransport replays a Script, one reply per Complete call.
type ScriptedTransport struct {
	defaults []string
	turns    map[string][]string

	mu      sync.Mutex
	cursors map[string]int
}

// LoadScript reads a Script from a YAML file.
func LoadScript(path string) (*ScriptedTransport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading oracle script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing oracle script %s: %w", path, err)
	}
	return NewScripted(s)
}

// NewScripted builds a transport from an in-memory Script.
func NewScripted(s Script) (*ScriptedTransport, error) {
	t := &ScriptedTransport{
		turns:   make(map[string][]string, len(s.Turns)),
		cursors: map[string]int{},
	}
	var err error
	if t.defaults, err = encodeReplies(s.Default); err != nil {
		return nil, fmt.Errorf("default replies: %w", err)
	}
	for uid, replies := range s.Turns {
		if t.turns[uid], err = encodeReplies(replies); err != nil {
			return nil, fmt.Errorf("replies for turn %s: %w", uid, err)
		}
	}
	return t, nil
}

// Replies is shorthand for a script with one reply list shared by every turn.
func Replies(replies ...string) *ScriptedTransport {
	items := make([]any, len(replies))
	for i, r := range replies {
		items[i] = r
	}
	t, _ := NewScripted(Script{Default: items})
	return t
}

func (t *ScriptedTransport) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	replies, ok := t.turns[req.TurnUID]
	if !ok {
		replies = t.defaults
	}
	i := t.cursors[req.TurnUID]
	if i >= len(replies) {
		return "", fmt.Errorf("oracle script exhausted for turn %q after %d replies", req.TurnUID, len(replies))
	}
	t.cursors[req.TurnUID] = i + 1
	return replies[i], nil
}

// Calls reports how many replies turnUID has consumed.
func (t *ScriptedTransport) Calls(turnUID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursors[turnUID]
}

func encodeReplies(items []any) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out = append(out, string(data))
		}
	}
	return out, nil
}
