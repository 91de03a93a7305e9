package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/argus-labs/tabletop/setup"
	"github.com/argus-labs/tabletop/snapshot"
)

func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate FILE",
		Short:   "Check a document or snapshot file",
		Example: "tabletop validate table.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := setup.FromDocs(doc.Setups); err != nil {
				return err
			}
			store, err := snapshot.Restore(nil, doc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d objects, %d setups\n", args[0], store.Len(), len(doc.Setups))
			return err
		},
	}
}
