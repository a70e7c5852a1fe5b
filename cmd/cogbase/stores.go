package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cogbase/memory/episodic"
	"github.com/becomeliminal/cogbase/memory/procedural"
	"github.com/becomeliminal/cogbase/memory/semantic"
	"github.com/becomeliminal/cogbase/memory/store/chromem"
)

// knownStores lists every store the memory packages create.
var knownStores = []string{
	episodic.StoreName,
	procedural.StoreName,
	procedural.SkillStoreName,
	procedural.NonFuncStoreName,
	semantic.StoreName,
	semantic.SummaryStore,
	semantic.ReflectionStore,
}

func newStoresCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "Show the document count of every store in the checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := a.openEmbedder()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STORE\tDOCUMENTS")
			for _, name := range knownStores {
				if !storeExists(a.cfg.CkptDir, name) {
					fmt.Fprintf(w, "%s\t-\n", name)
					continue
				}
				s, err := chromem.Open(a.cfg.CkptDir, name, emb, a.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", name, s.Count())
			}
			return w.Flush()
		},
	}
}

// storeExists reports whether a store was ever opened under dir, so that
// listing does not create empty stores.
func storeExists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name, "vectordb"))
	return !errors.Is(err, fs.ErrNotExist)
}
