package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spboyer/sqleval/internal/guard"
	"github.com/spf13/cobra"
)

var checkSanitized bool

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [sql]",
		Short: "Check a statement against the read-only policy",
		Long: `Check whether a SQL statement is admissible under the read-only policy.

The statement is taken from the arguments, or read from stdin when none are
given. The command exits with status 1 when the statement is rejected.`,
		RunE: checkCommandE,
	}

	cmd.Flags().BoolVar(&checkSanitized, "sanitized", false, "Print the statement with comments and literals blanked out")

	return cmd
}

func checkCommandE(cmd *cobra.Command, args []string) error {
	sql := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read statement: %w", err)
		}
		sql = string(data)
	}
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("no statement given")
	}

	out := cmd.OutOrStdout()
	if checkSanitized {
		fmt.Fprintf(out, "Sanitized: %s\n", oneLine(guard.Sanitize(sql)))
	}
	if guard.HasMultipleStatements(sql) {
		fmt.Fprintln(out, "Note: input holds more than one statement and will fail at execution")
	}
	if err := guard.Check(sql); err != nil {
		fmt.Fprintln(out, "✗ rejected")
		return &StatementRejectedError{Reason: err}
	}
	fmt.Fprintln(out, "✓ allowed")
	return nil
}
