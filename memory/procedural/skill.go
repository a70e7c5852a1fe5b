package procedural

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/memory"
)

const (
	// SkillStoreName holds callable skills keyed by name.
	SkillStoreName = "skill"

	// NonFuncStoreName holds code snippets that are not standalone functions.
	NonFuncStoreName = "non_func"

	CallableTag  = "Callable Code"
	ReferenceTag = "Reference Code (Not callable)"

	entriesFile = "entries.json"
)

// SkillRecord is the parsed output of a code-writing step.
type SkillRecord struct {
	ProgramName  string   `json:"program_name"`
	ProgramCode  string   `json:"program_code"`
	Dependencies []string `json:"dependencies,omitempty"`

	// NoParent marks the program as a standalone function.
	NoParent bool `json:"no_parent"`
}

// Skill is a stored callable skill.
type Skill struct {
	Name         string   `json:"name"`
	Code         string   `json:"code"`
	Description  string   `json:"description"`
	Task         string   `json:"task"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// SkillOption configures a SkillLibrary.
type SkillOption func(*SkillLibrary)

// WithoutSkillFiles disables the code/ and description/ file dumps.
func WithoutSkillFiles() SkillOption {
	return func(l *SkillLibrary) { l.skillFiles = false }
}

// WithCodeExt sets the extension of dumped code files. Default: ".py".
func WithCodeExt(ext string) SkillOption {
	return func(l *SkillLibrary) { l.codeExt = ext }
}

// SkillLibrary stores learned code. Callable skills live in the skill store
// and in <ckpt_dir>/skill/entries.json; other snippets go to non_func.
type SkillLibrary struct {
	*memory.Base

	entries    map[string]Skill
	dir        string
	skillFiles bool
	codeExt    string
	logger     logrus.FieldLogger
}

// NewSkillLibrary opens the skill and non_func stores. The skill store must
// hold exactly the skills listed in entries.json; a mismatch usually means
// a stale vector store from an earlier run and is a configuration error.
func NewSkillLibrary(opener memory.Opener, config *memory.Config, opts ...SkillOption) (*SkillLibrary, error) {
	base, err := memory.NewBase(opener, SkillStoreName, config)
	if err != nil {
		return nil, err
	}
	if _, err := base.Registry.RegisterStore(NonFuncStoreName); err != nil {
		return nil, fmt.Errorf("register store %s: %w", NonFuncStoreName, err)
	}
	cfg := base.Config()

	l := &SkillLibrary{
		Base:       base,
		entries:    make(map[string]Skill),
		dir:        filepath.Join(cfg.CkptDir, SkillStoreName),
		skillFiles: true,
		codeExt:    ".py",
		logger:     base.Logger().WithField("component", "skill"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if cfg.Resume {
		if _, err := memory.LoadJSON(filepath.Join(l.dir, entriesFile), &l.entries); err != nil {
			return nil, fmt.Errorf("load skills: %w", err)
		}
	}

	store, _ := base.Registry.Store(SkillStoreName)
	if n := store.Count(); n != len(l.entries) {
		return nil, fmt.Errorf("%w: skill store has %d skills but %s lists %d; "+
			"resume the run or delete %s to start from scratch",
			memory.ErrConfiguration, n, entriesFile, len(l.entries), l.dir)
	}
	l.logger.Infof("loaded %d skills", len(l.entries))
	return l, nil
}

// AddSkill stores a code-writing result. A named standalone program becomes
// a callable skill and returns its name; anything else is kept as reference
// code and returns "". taskID, when set, replaces task in the reference
// snippet's metadata.
func (l *SkillLibrary) AddSkill(ctx context.Context, rec SkillRecord, description, task, taskID string) (string, error) {
	if !l.Enabled() {
		return "", nil
	}
	if rec.ProgramCode == "" {
		return "", fmt.Errorf("%w: skill record needs program_code", memory.ErrConfiguration)
	}

	if rec.ProgramName == "" || !rec.NoParent {
		meta := map[string]any{"task": task, "code": rec.ProgramCode}
		if taskID != "" {
			meta["task"] = taskID
		}
		u, err := l.Registry.Updater(NonFuncStoreName)
		if err != nil {
			return "", err
		}
		if _, err := u.Update(ctx, description, meta, ""); err != nil {
			return "", fmt.Errorf("add reference code: %w", err)
		}
		return "", nil
	}

	skill := Skill{
		Name:         rec.ProgramName,
		Code:         rec.ProgramCode,
		Description:  description,
		Task:         task,
		Dependencies: rec.Dependencies,
	}
	meta := map[string]any{
		"name": skill.Name,
		"code": skill.Code,
		"task": skill.Task,
	}
	if len(skill.Dependencies) > 0 {
		meta["dependencies"] = skill.Dependencies
	}
	if _, err := l.Update(ctx, description, meta, skill.Name); err != nil {
		return "", fmt.Errorf("add skill %s: %w", skill.Name, err)
	}

	if _, exists := l.entries[skill.Name]; exists {
		l.logger.WithField("skill", skill.Name).Info("overwriting skill")
	}
	l.entries[skill.Name] = skill
	if err := memory.SaveJSON(filepath.Join(l.dir, entriesFile), l.entries); err != nil {
		return "", fmt.Errorf("save skills: %w", err)
	}
	if l.skillFiles {
		if err := l.dumpFiles(skill); err != nil {
			return "", err
		}
	}
	return skill.Name, nil
}

func (l *SkillLibrary) dumpFiles(s Skill) error {
	files := []struct{ path, content string }{
		{filepath.Join(l.dir, "code", s.Name+l.codeExt), s.Code},
		{filepath.Join(l.dir, "description", s.Name+".txt"), s.Description},
	}
	for _, f := range files {
		path, content := f.path, f.content
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create skill dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// Skill returns the callable skill called name.
func (l *SkillLibrary) Skill(name string) (Skill, bool) {
	s, ok := l.entries[name]
	return s, ok
}

// Skills returns every callable skill sorted by name.
func (l *SkillLibrary) Skills() []Skill {
	out := make([]Skill, 0, len(l.entries))
	for _, s := range l.entries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RetrieveCode returns callable skills similar to query, each rendered as
// description followed by its code.
func (l *SkillLibrary) RetrieveCode(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	opts = append(opts, memory.WithTransform(l.callableCode))
	return l.RetrieveAndFormat(ctx, query, SkillStoreName, CallableTag, opts...)
}

// RetrieveNonFunc returns reference snippets similar to query.
func (l *SkillLibrary) RetrieveNonFunc(ctx context.Context, query string, opts ...memory.RetrieveOption) ([]memory.Formatted, error) {
	opts = append(opts, memory.WithTransform(referenceCode))
	return l.RetrieveAndFormat(ctx, query, NonFuncStoreName, ReferenceTag, opts...)
}

func (l *SkillLibrary) callableCode(doc memory.Document) string {
	name, _ := doc.Metadata["name"].(string)
	code := ""
	if s, ok := l.entries[name]; ok {
		code = s.Code
	} else if c, ok := doc.Metadata["code"].(string); ok {
		code = c
	}
	return doc.Content + "\n\n" + code
}

func referenceCode(doc memory.Document) string {
	code, _ := doc.Metadata["code"].(string)
	return doc.Content + "\n\n" + code
}
