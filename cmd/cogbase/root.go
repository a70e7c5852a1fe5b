package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/cogbase/config"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/store/chromem"
)

// app is the state shared by every command.
type app struct {
	configPath string
	ckptDir    string

	cfg      *config.Config
	logger   *logrus.Logger
	embedder memory.Embedder
	closers  []func()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "cogbase",
		Short:        "Inspect and repair agent memory checkpoints",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.ckptDir, "ckpt-dir", "", "checkpoint directory (overrides ckpt_dir)")

	root.AddCommand(
		newStoresCmd(a),
		newEpisodeCmd(a),
		newRulesCmd(a),
		newQueryCmd(a),
		newAskCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.ckptDir != "" {
		cfg.CkptDir = a.ckptDir
	}
	a.cfg = cfg
	a.logger = cfg.Logger()
	a.logger.SetOutput(cmd.ErrOrStderr())
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openEmbedder builds the configured embedder once per invocation.
func (a *app) openEmbedder() (memory.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	emb, closeFn, err := newEmbedder(a.cfg.Embedder, a.logger)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if closeFn != nil {
		a.closers = append(a.closers, closeFn)
	}
	a.embedder = emb
	return emb, nil
}

// opener returns a memory.Opener over the checkpoint directory.
func (a *app) opener() (memory.Opener, error) {
	emb, err := a.openEmbedder()
	if err != nil {
		return nil, err
	}
	return chromem.Opener(a.cfg.CkptDir, emb, a.logger), nil
}

// memoryConfig returns the shared memory options. Inspection always reads
// persisted state, whatever the resume setting says.
func (a *app) memoryConfig() *memory.Config {
	mc := a.cfg.MemoryConfig(false, a.logger)
	mc.Resume = true
	return mc
}
