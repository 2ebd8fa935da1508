// Dump command for the relmap CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <table>",
	Short: "Print a table's rows as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]

		db, _, err := openDatabase()
		if err != nil {
			fmt.Fprintln(os.Stderr, "dump:", err)
			os.Exit(exitSysError)
		}
		defer db.Close()

		names, err := userTables(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "dump:", err)
			os.Exit(exitSysError)
		}
		known := false
		for _, name := range names {
			if name == table {
				known = true
				break
			}
		}
		if !known {
			fmt.Fprintf(os.Stderr, "dump: unknown table %q\n", table)
			os.Exit(exitUserError)
		}

		rows, err := db.Query("SELECT * FROM " + table + " ORDER BY rowid")
		if err != nil {
			fmt.Fprintln(os.Stderr, "dump:", err)
			os.Exit(exitSysError)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			fmt.Fprintln(os.Stderr, "dump:", err)
			os.Exit(exitSysError)
		}

		var out []map[string]any
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				fmt.Fprintln(os.Stderr, "dump:", err)
				os.Exit(exitSysError)
			}
			row := make(map[string]any, len(cols))
			for i, col := range cols {
				if b, ok := vals[i].([]byte); ok {
					row[col] = string(b)
				} else {
					row[col] = vals[i]
				}
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "dump:", err)
			os.Exit(exitSysError)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
