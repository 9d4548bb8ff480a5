// Package oracle defines the contract with the text-generation service that
// proposes SQL, decodes its replies and provides transports to concrete
// services.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/sqleval/internal/validation"
)

// Request is one prompt exchange with the oracle.
type Request struct {
	// TurnUID identifies the turn being answered. Transports that replay
	// recorded replies key on it; others ignore it.
	TurnUID string
	System  string
	User    string
}

// Transport delivers a Request to a text-generation service and returns the
// raw reply. Implementations must be safe for concurrent use.
type Transport interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Action is the decoded planner reply: Query, Final or Invalid.
type Action interface {
	isAction()
}

// Query asks the controller to execute SQL. SQL may be empty when the oracle
// omitted it.
type Query struct {
	Reasoning string
	SQL       string
}

// Final adopts Answer as the final answer.
type Final struct {
	Reasoning string
	Answer    string
}

// Invalid is a well-formed reply naming an action the protocol does not know.
type Invalid struct {
	Action string
}

func (Query) isAction()   {}
func (Final) isAction()   {}
func (Invalid) isAction() {}

// ProtocolError is returned when a reply cannot be decoded under the
// contract. It is never retried.
type ProtocolError struct {
	Reply    string
	Problems []string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "oracle reply is malformed: " + e.Err.Error()
	}
	return "oracle reply violates the action contract: " + strings.Join(e.Problems, "; ")
}

func (e *ProtocolError) Unwrap() error { return e.Err }

type actionPayload struct {
	Action      string `json:"action"`
	Reasoning   string `json:"reasoning"`
	SQL         string `json:"sql"`
	FinalAnswer string `json:"final_answer"`
}

// DecodeAction validates reply against the action schema and maps it onto
// an Action. A reply wrapped in a markdown code fence is unwrapped first.
func DecodeAction(reply string) (Action, error) {
	var p actionPayload
	if err := decodeReply(reply, validation.ValidateAction, &p); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(p.Action)) {
	case "final":
		return Final{Reasoning: p.Reasoning, Answer: strings.TrimSpace(p.FinalAnswer)}, nil
	case "query":
		return Query{Reasoning: p.Reasoning, SQL: strings.TrimSpace(p.SQL)}, nil
	default:
		return Invalid{Action: p.Action}, nil
	}
}

// DecodeFinal validates a summarization reply and returns its answer.
func DecodeFinal(reply string) (string, error) {
	var p actionPayload
	if err := decodeReply(reply, validation.ValidateFinal, &p); err != nil {
		return "", err
	}
	return strings.TrimSpace(p.FinalAnswer), nil
}

func decodeReply(reply string, validate func(any) []string, out *actionPayload) error {
	doc, err := validation.DecodeJSON(stripFence(reply))
	if err != nil {
		return &ProtocolError{Reply: reply, Err: fmt.Errorf("reply is not valid JSON: %w", err)}
	}
	if problems := validate(doc); len(problems) > 0 {
		return &ProtocolError{Reply: reply, Problems: problems}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       boolAnswerHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(doc); err != nil {
		return &ProtocolError{Reply: reply, Err: err}
	}
	return nil
}

// boolAnswerHook renders a boolean as a word. Weak decoding alone would
// turn true into "1", which reads as a count.
func boolAnswerHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Bool || to.Kind() != reflect.String {
		return data, nil
	}
	if data.(bool) {
		return "True", nil
	}
	return "False", nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// Client pairs a Transport with the planner and summarization prompts.
type Client struct {
	transport Transport
}

func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

// Plan asks for the next action.
func (c *Client) Plan(ctx context.Context, in PlannerInput) (Action, error) {
	reply, err := c.transport.Complete(ctx, PlannerRequest(in))
	if err != nil {
		return nil, fmt.Errorf("oracle planner call: %w", err)
	}
	slog.Debug("Planner reply", "turn", in.TurnUID, "reply", reply)
	return DecodeAction(reply)
}

// Summarize asks for a final answer from the steps taken so far.
func (c *Client) Summarize(ctx context.Context, in FinalInput) (string, error) {
	reply, err := c.transport.Complete(ctx, FinalRequest(in))
	if err != nil {
		return "", fmt.Errorf("oracle summarization call: %w", err)
	}
	slog.Debug("Summarization reply", "turn", in.TurnUID, "reply", reply)
	return DecodeFinal(reply)
}
