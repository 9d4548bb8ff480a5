package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/spboyer/sqleval/internal/dataset"
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spf13/cobra"
)

var (
	turnsSource       string
	turnsSplit        string
	turnsLimit        int
	turnsMinTurnIndex int
	turnsConversation string
	turnsFrom         int
	turnsTo           int
)

func newTurnsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "Inspect and build turn stores",
	}
	cmd.AddCommand(newTurnsListCommand())
	cmd.AddCommand(newTurnsShowCommand())
	cmd.AddCommand(newTurnsImportCommand())
	return cmd
}

func newTurnsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <turns.db>",
		Short: "List the turns in a store",
		Args:  cobra.ExactArgs(1),
		RunE:  turnsListCommandE,
	}

	cmd.Flags().StringVar(&turnsSource, "source", "", "Only turns from this dataset")
	cmd.Flags().StringVar(&turnsSplit, "split", "", "Only turns from this split")
	cmd.Flags().IntVar(&turnsLimit, "limit", 0, "List at most N turns")
	cmd.Flags().IntVar(&turnsMinTurnIndex, "min-turn-index", -1, "Only turns at or after this index")
	cmd.Flags().StringVar(&turnsConversation, "conversation", "", "List one conversation in turn order (other filters are ignored)")

	return cmd
}

func newTurnsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <turns.db> <turn_uid>",
		Short: "Show one turn with its conversation context",
		Args:  cobra.ExactArgs(2),
		RunE:  turnsShowCommandE,
	}
}

func newTurnsImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <turns.csv> <turns.db>",
		Short: "Import a CSV of turns into a store",
		Long: `Import hand-written turns from a CSV file into a turn store.

The store is created when missing. Rows with an existing turn_uid replace the
stored turn. --from and --to select data rows (1-based, inclusive), not
counting the header.`,
		Args: cobra.ExactArgs(2),
		RunE: turnsImportCommandE,
	}

	cmd.Flags().IntVar(&turnsFrom, "from", 0, "First data row to import")
	cmd.Flags().IntVar(&turnsTo, "to", 0, "Last data row to import")

	return cmd
}

func turnsListCommandE(cmd *cobra.Command, args []string) error {
	store, err := dataset.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	var turns []models.Turn
	if turnsConversation != "" {
		turns, err = store.Conversation(cmd.Context(), turnsConversation)
	} else {
		f := dataset.Filter{Source: turnsSource, Split: turnsSplit, Limit: turnsLimit}
		if turnsMinTurnIndex >= 0 {
			idx := turnsMinTurnIndex
			f.MinTurnIndex = &idx
		}
		turns, err = store.Load(cmd.Context(), f)
	}
	if err != nil {
		return fmt.Errorf("failed to load turns: %w", err)
	}

	out := cmd.OutOrStdout()
	printTurns(out, turns)
	printDataSummary(out, dataset.Summarize(turns))
	return nil
}

func turnsShowCommandE(cmd *cobra.Command, args []string) error {
	store, err := dataset.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	turn, err := store.Get(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("failed to load turn: %w", err)
	}
	if turn == nil {
		return fmt.Errorf("turn %q not found in %s", args[1], args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Turn:      %s\n", turn.TurnUID)
	fmt.Fprintf(out, "Database:  %s (%s)\n", or(turn.DBID, "-"), or(turn.DBFile, "-"))
	if turn.ConversationID != "" {
		fmt.Fprintf(out, "Conversation: %s, turn %d\n", turn.ConversationID, turn.TurnIndex)
	}
	if prior := turn.Utterances(); len(prior) > 0 {
		fmt.Fprintln(out, "Earlier:")
		for i, u := range prior {
			fmt.Fprintf(out, "  %d. %s\n", i+1, oneLine(u))
		}
	}
	fmt.Fprintf(out, "Question:  %s\n", oneLine(turn.Text))
	if turn.HasReference() {
		fmt.Fprintf(out, "Reference: %s\n", oneLine(turn.GoldSQL))
	} else {
		fmt.Fprintln(out, "Reference: none (turn is not scored)")
	}
	return nil
}

func turnsImportCommandE(cmd *cobra.Command, args []string) error {
	turns, err := readTurnsCSV(args[0], turnsFrom, turnsTo)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	store, err := dataset.Create(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(cmd.Context(), turns); err != nil {
		return fmt.Errorf("failed to save turns: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d turns into %s\n", len(turns), args[1])
	return nil
}

func readTurnsCSV(path string, from, to int) ([]models.Turn, error) {
	if from == 0 && to == 0 {
		return dataset.LoadTurnsCSV(path)
	}
	if from == 0 {
		from = 1
	}
	if to == 0 {
		to = math.MaxInt
	}
	records, err := dataset.LoadCSVRange(path, from, to)
	if err != nil {
		return nil, err
	}
	return dataset.TurnsFromRecords(records)
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func printTurns(w io.Writer, turns []models.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "No turns found.")
		return
	}
	const uidWidth, dbWidth = 28, 20
	fmt.Fprintf(w, "%s  %s  %-5s  %-3s  %s\n", padRight("TURN", uidWidth), padRight("DB", dbWidth), "INDEX", "REF", "QUESTION")
	for _, t := range turns {
		ref := "-"
		if t.HasReference() {
			ref = "yes"
		}
		fmt.Fprintf(w, "%s  %s  %-5d  %-3s  %s\n",
			padRight(truncateName(t.TurnUID, uidWidth), uidWidth),
			padRight(truncateName(t.DBID, dbWidth), dbWidth),
			t.TurnIndex, ref, truncateName(oneLine(t.Text), 60))
	}
}

func printDataSummary(w io.Writer, s models.DataSummary) {
	fmt.Fprintf(w, "\nTurns: %d  Databases: %d\n", s.NumTurns, s.UniqueDBs)
	if len(s.Datasets) > 0 {
		fmt.Fprintf(w, "Datasets: %s\n", formatCounts(s.Datasets))
	}
	if len(s.Splits) > 0 {
		fmt.Fprintf(w, "Splits: %s\n", formatCounts(s.Splits))
	}
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
