package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cogbase/memory"
)

func newQueryCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <store> <text>",
		Short: "Retrieve the nearest documents of a store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, text := args[0], args[1]
			if !storeExists(a.cfg.CkptDir, name) {
				return fmt.Errorf("%w: %s", memory.ErrUnknownStore, name)
			}
			opener, err := a.opener()
			if err != nil {
				return err
			}

			reg := memory.NewRegistry(opener, a.cfg.TopK, a.logger)
			if _, err := reg.RegisterStore(name); err != nil {
				return err
			}
			results, err := reg.RetrieveAndFormat(cmd.Context(), text, name, name, memory.WithK(k), memory.WithScores())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "score %.4f%s", r.Score, r.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (default retrieval_top_k)")
	return cmd
}
