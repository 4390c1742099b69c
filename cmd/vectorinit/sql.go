package main

import (
	"fmt"

	"rag-system/vectorinit/internal/dbsetup"

	"github.com/spf13/cobra"
)

var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "Print the bootstrap statements as an init script",
	Long: `Print the statements the bootstrap would apply, rendered from the
current configuration, as a plain SQL script. The output can be mounted into
/docker-entrypoint-initdb.d of the postgres image. Nothing is executed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), dbsetup.Script(app.orchestrator.Statements()))
		return err
	},
}
