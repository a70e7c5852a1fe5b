package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cogbase/memory/episodic"
)

func newEpisodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "episode",
		Short: "Inspect or flush the episodic buffer",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the persisted episode state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.openEpisodic()
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(m.State(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "flush",
			Short: "Finish a pending episode left behind by an interrupted run",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.openEpisodic()
				if err != nil {
					return err
				}
				pending := m.Pending()
				if pending == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending transitions")
					return nil
				}
				if err := m.FinishEpisode(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "flushed %d transitions, next episode %d\n", pending, m.EpisodeID())
				return nil
			},
		},
	)
	return cmd
}

func (a *app) openEpisodic() (*episodic.Memory, error) {
	opener, err := a.opener()
	if err != nil {
		return nil, err
	}
	return episodic.New(opener, a.memoryConfig())
}
