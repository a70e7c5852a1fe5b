package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cogbase/core"
	"github.com/becomeliminal/cogbase/engine"
	"github.com/becomeliminal/cogbase/memory/episodic"
	"github.com/becomeliminal/cogbase/memory/procedural"
	"github.com/becomeliminal/cogbase/memory/semantic"
	"github.com/becomeliminal/cogbase/retry"
)

const askSystemPrompt = `You are a coding assistant with long-term memory.
Relevant memories retrieved for the question are listed below; use them when they apply and say so when they do not.`

func newAskCmd(a *app) *cobra.Command {
	var showContext bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with context retrieved from every memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			ctx := cmd.Context()

			eng, err := a.openEngine()
			if err != nil {
				return err
			}
			retrieved, err := eng.Retrieve(ctx, question)
			if err != nil {
				return err
			}
			if showContext {
				fmt.Fprintln(cmd.ErrOrStderr(), strings.Join(retrieved, ""))
			}

			gen, err := newGenerator(a.cfg.Generator, a.logger)
			if err != nil {
				return err
			}
			p := retry.New(gen, a.cfg.RetryConfig("ask", a.logger))
			res := retry.Run(ctx, p, retry.Request[string]{
				Messages: []core.Message{
					core.SystemMessage(askSystemPrompt + "\n" + strings.Join(retrieved, "")),
					core.UserMessage(question),
				},
				Parse: retry.Content,
			})
			if !res.OK {
				return fmt.Errorf("no answer after %d attempts", res.Attempts)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved memories to stderr")
	return cmd
}

// openEngine wires every memory kind, honouring the ablation switches, into
// an engine used for retrieval.
func (a *app) openEngine() (*engine.Engine, error) {
	opener, err := a.opener()
	if err != nil {
		return nil, err
	}
	mem := a.cfg.Memory

	epi, err := episodic.New(opener, a.cfg.MemoryConfig(mem.DisableEpisodic, a.logger))
	if err != nil {
		return nil, err
	}
	sem, err := semantic.New(opener, a.cfg.MemoryConfig(mem.DisableSemantic, a.logger))
	if err != nil {
		return nil, err
	}
	skills, err := procedural.NewSkillLibrary(opener, a.cfg.MemoryConfig(mem.DisableProcedural, a.logger))
	if err != nil {
		return nil, err
	}
	return engine.New(a.cfg.EngineConfig(),
		engine.WithEpisodic(epi),
		engine.WithSemantic(sem),
		engine.WithSkills(skills),
		engine.WithLogger(a.logger),
	), nil
}
