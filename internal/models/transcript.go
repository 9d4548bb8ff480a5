package models

import "encoding/json"

// Step is one agent round: the oracle's rationale, the SQL it proposed and
// the guarded execution outcome of that SQL.
type Step struct {
	Number    int      `json:"step"`
	Reasoning string   `json:"reasoning"`
	SQL       string   `json:"sql"`
	Execution *Outcome `json:"execution"`
}

// Transcript is the record of one agent run. It is assembled once by the
// controller and never changes afterwards; accessors hand out copies.
type Transcript struct {
	steps       []Step
	finalAnswer string
}

// NewTranscript copies steps into a new Transcript, numbering them from 1.
func NewTranscript(steps []Step, finalAnswer string) *Transcript {
	owned := cloneSteps(steps)
	for i := range owned {
		owned[i].Number = i + 1
	}
	return &Transcript{steps: owned, finalAnswer: finalAnswer}
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.clone()
	}
	return out
}

func (s Step) clone() Step {
	s.Execution = s.Execution.Clone()
	return s
}

// Steps returns a copy of the recorded steps.
func (t *Transcript) Steps() []Step {
	if t == nil {
		return nil
	}
	return cloneSteps(t.steps)
}

// Len is the number of recorded steps.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.steps)
}

// Last returns the final step, or false for a transcript with no steps.
func (t *Transcript) Last() (Step, bool) {
	if t.Len() == 0 {
		return Step{}, false
	}
	return t.steps[len(t.steps)-1].clone(), true
}

func (t *Transcript) FinalAnswer() string {
	if t == nil {
		return ""
	}
	return t.finalAnswer
}

type transcriptJSON struct {
	Steps       []Step `json:"steps"`
	FinalAnswer string `json:"final_answer"`
}

func (t *Transcript) MarshalJSON() ([]byte, error) {
	steps := t.steps
	if steps == nil {
		steps = []Step{}
	}
	return json.Marshal(transcriptJSON{Steps: steps, FinalAnswer: t.finalAnswer})
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var raw transcriptJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = *NewTranscript(raw.Steps, raw.FinalAnswer)
	return nil
}
