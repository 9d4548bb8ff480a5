package models

import "strings"

// ContextEventType identifies one prior event in a multi-turn conversation.
type ContextEventType string

const (
	ContextText ContextEventType = "text"
	ContextSQL  ContextEventType = "sql"
)

// ContextEvent is one prior utterance or SQL statement that precedes a turn.
type ContextEvent struct {
	Type  ContextEventType `json:"type" yaml:"type"`
	Value string           `json:"value" yaml:"value"`
}

// Turn is one question against a target database. Turns are read-only inputs;
// nothing in the evaluation pipeline mutates them.
type Turn struct {
	TurnUID        string         `json:"turn_uid"`
	Dataset        string         `json:"dataset,omitempty"`
	Split          string         `json:"split,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	TurnIndex      int            `json:"turn_index"`
	DBID           string         `json:"db_id,omitempty"`
	DBFile         string         `json:"db_file,omitempty"`
	Dialect        string         `json:"dialect,omitempty"`
	Text           string         `json:"text"`
	Context        []ContextEvent `json:"context"`
	ContextGoldSQL []string       `json:"context_gold_sql"`
	GoldSQL        string         `json:"gold_sql,omitempty"`
	Difficulty     string         `json:"difficulty,omitempty"`
}

// HasReference reports whether the turn can be scored: it needs both a target
// database and a non-blank reference query.
func (t *Turn) HasReference() bool {
	return t.DBFile != "" && strings.TrimSpace(t.GoldSQL) != ""
}

// Utterances returns the prior natural-language utterances in order.
func (t *Turn) Utterances() []string {
	var out []string
	for _, ev := range t.Context {
		if ev.Type == ContextText {
			out = append(out, ev.Value)
		}
	}
	return out
}
