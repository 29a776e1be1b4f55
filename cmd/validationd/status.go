package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/validation/config"
	"github.com/luxfi/validation/reputation"
	"github.com/luxfi/validation/store"
)

// statusCmd inspects a peer's on-disk store directly. It must not be run
// against a store directory a "run" process currently has open: pebble
// takes an exclusive lock on the directory.
func statusCmd() *cobra.Command {
	var storeDir, topic string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "print a peer's local topics, content log, and reputations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(storeDir)
			if err != nil {
				return err
			}
			defer db.Close()

			topics, err := store.ListTopics(db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "topics:")
			for _, t := range topics {
				fmt.Fprintf(out, "  %s — %s\n", t.Name, t.Description)
			}

			content, err := store.ListValidatedContent(db)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "validated content:")
			for _, c := range content {
				fmt.Fprintf(out, "  %s [%s]: %s\n", c.IDVotation, c.Approved, c.Content)
			}

			params := config.Default()
			ledger := reputation.New(db, params.DefaultReputation, params.ReputationIncrement)
			scores, err := ledger.All(topic)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "reputations on %q:\n", topic)
			for peer, score := range scores {
				fmt.Fprintf(out, "  %s: %.1f\n", peer, score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDir, "store", "", "peer's store directory")
	cmd.Flags().StringVar(&topic, "topic", config.Default().DefaultTopic, "topic to report reputations for")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
