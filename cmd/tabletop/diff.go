package main

import (
	"github.com/spf13/cobra"

	"github.com/argus-labs/tabletop/codec"
	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/snapshot"
)

func NewDiffCmd() *cobra.Command {
	var patch bool
	cmd := &cobra.Command{
		Use:   "diff BASE TARGET",
		Short: "Print the change records that turn BASE into TARGET",
		Long: "Print the change records that turn the BASE document into the TARGET document. With --patch the " +
			"documents are compared as JSON instead and an RFC 6902 patch is printed.",
		Example: "tabletop diff before.json after.yaml",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			target, err := snapshot.ReadFile(args[1])
			if err != nil {
				return err
			}

			var out any
			if patch {
				p, err := snapshot.Compare(base, target)
				if err != nil {
					return err
				}
				out = p
			} else {
				baseStore, err := snapshot.Restore(nil, base)
				if err != nil {
					return err
				}
				targetStore, err := snapshot.Restore(nil, target)
				if err != nil {
					return err
				}
				changes := gamedata.BuildChanges(baseStore, targetStore)
				if changes == nil {
					changes = []gamedata.Change{}
				}
				out = changes
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&patch, "patch", false, "print a JSON patch between the documents")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	bz, err := codec.EncodeIndent(v)
	if err != nil {
		return err
	}
	bz = append(bz, '\n')
	_, err = cmd.OutOrStdout().Write(bz)
	return err
}
