package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spboyer/sqleval/internal/models"
)

const PlannerSystemPrompt = `You answer questions about a SQLite database by running read-only SQL.

Each reply must be exactly one JSON object and nothing else:
  {"action": "query", "reasoning": "...", "sql": "SELECT ..."}
to run one statement, or
  {"action": "final", "reasoning": "...", "final_answer": "..."}
once the results you have seen answer the question.

Rules:
- Only single SELECT or WITH statements are executed. Anything that writes,
  alters the schema, or uses PRAGMA, ATTACH or transactions is rejected.
- Use only tables and columns from the schema you are given.
- Look at the results and errors of previous steps before choosing the next
  query. Do not repeat a query that already failed.
- The last query you run is the one your answer is graded on, so finish with
  a query whose result is the answer.`

const FinalAnswerSystemPrompt = `You summarise the outcome of a series of SQL queries run to answer a
question. Reply with exactly one JSON object: {"final_answer": "..."}.
Base the answer only on the query results shown. If they do not answer the
question, say so in final_answer.`

// PlannerInput carries everything the planner sees in one round.
type PlannerInput struct {
	TurnUID  string
	Question string
	Schema   models.Schema
	Context  []models.ContextEvent
	// Steps is the serialized, size-bounded view of previous steps.
	Steps string
}

// FinalInput carries the summarization call's payload.
type FinalInput struct {
	TurnUID  string
	Question string
	Steps    string
}

// PlannerRequest renders a planner Request.
func PlannerRequest(in PlannerInput) Request {
	schema, _ := json.Marshal(in.Schema)
	steps := in.Steps
	if steps == "" {
		steps = "[]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", in.Question)
	fmt.Fprintf(&b, "Database schema (table -> columns):\n%s\n\n", schema)
	if ctx := renderContext(in.Context); ctx != "" {
		fmt.Fprintf(&b, "Earlier in this conversation:\n%s\n", ctx)
	}
	fmt.Fprintf(&b, "Previous steps:\n%s\n\n", steps)
	b.WriteString("Return the next action as JSON.")

	return Request{TurnUID: in.TurnUID, System: PlannerSystemPrompt, User: b.String()}
}

// FinalRequest renders a summarization Request.
func FinalRequest(in FinalInput) Request {
	steps := in.Steps
	if steps == "" {
		steps = "[]"
	}
	user := fmt.Sprintf("Question:\n%s\n\nSteps taken:\n%s\n\nReturn the final answer as JSON.", in.Question, steps)
	return Request{TurnUID: in.TurnUID, System: FinalAnswerSystemPrompt, User: user}
}

func renderContext(events []models.ContextEvent) string {
	var b strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case models.ContextSQL:
			fmt.Fprintf(&b, "- SQL: %s\n", ev.Value)
		default:
			fmt.Fprintf(&b, "- User: %s\n", ev.Value)
		}
	}
	return b.String()
}
