package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/validation/identity"
)

func keygenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a new peer identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Generate()
			if err != nil {
				return err
			}
			if err := saveIdentity(out, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "peer id: %s\nkey file: %s\n", id.PeerID, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "validationd.key", "path to write the new private key")
	return cmd
}
