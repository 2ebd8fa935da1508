// Tables command for the relmap CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List mapped tables and their row counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase()
		if err != nil {
			fmt.Fprintln(os.Stderr, "tables:", err)
			os.Exit(exitSysError)
		}
		defer db.Close()

		names, err := userTables(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tables:", err)
			os.Exit(exitSysError)
		}

		type tableInfo struct {
			Name string `json:"name"`
			Rows int64  `json:"rows"`
		}
		infos := make([]tableInfo, 0, len(names))
		for _, name := range names {
			var count int64
			if err := db.QueryRow("SELECT COUNT(*) FROM " + name).Scan(&count); err != nil {
				fmt.Fprintln(os.Stderr, "tables:", err)
				os.Exit(exitSysError)
			}
			infos = append(infos, tableInfo{Name: name, Rows: count})
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tROWS")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\n", info.Name, info.Rows)
		}
		return w.Flush()
	},
}
