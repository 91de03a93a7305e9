package main

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/argus-labs/tabletop/setup"
	"github.com/argus-labs/tabletop/snapshot"
)

func NewSetupCmd() *cobra.Command {
	var (
		name      string
		seed      uint64
		out       string
		setupFile string
	)
	cmd := &cobra.Command{
		Use:   "setup DOCUMENT",
		Short: "Run a setup over a document and print the result",
		Long: "Run the named setup over the objects of DOCUMENT. Setups stored in the document are available, " +
			"together with those of --setups. The result is written to --out, or printed.",
		Example: "tabletop setup table.yaml --name deal --seed 7 --out dealt.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			setups, err := setup.FromDocs(doc.Setups)
			if err != nil {
				return err
			}
			if setupFile != "" {
				extra, err := setup.LoadFile(setupFile)
				if err != nil {
					return err
				}
				setups = append(extra, setups...)
			}
			s, err := setup.Find(setups, name)
			if err != nil {
				return err
			}

			store, err := snapshot.Restore(nil, doc)
			if err != nil {
				return err
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			if err := setup.NewRunner(store, seed, setup.WithLogger(logger)).Run(s); err != nil {
				return eris.Wrap(err, "setup failed")
			}

			result := snapshot.Capture(store)
			result.Setups = doc.Setups
			if out != "" {
				return snapshot.WriteFile(out, result)
			}
			bz, err := snapshot.Encode(result)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(bz, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "setup to run")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed for shuffles and random picks")
	cmd.Flags().StringVar(&out, "out", "", "file to write the result to, .yaml for YAML")
	cmd.Flags().StringVar(&setupFile, "setups", "", "YAML file with more setups")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
