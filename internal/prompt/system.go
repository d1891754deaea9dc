package prompt

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DefaultSystemPrompt establishes the assistant's behavior when no
// override is configured.
const DefaultSystemPrompt = `You are an expert software developer working inside the user's project.

Answer questions about the code and propose changes when asked. When you change a file, show the complete edited region with enough surrounding context to apply it unambiguously, and name the file path it belongs to.

Files marked read-only are reference material: never propose edits to them.

Keep answers focused. Follow the conventions already present in the code.`

// rulesFiles are workspace files whose contents are appended to the system
// prompt when present.
var rulesFiles = []string{
	"AGENTS.md",
	"CONVENTIONS.md",
	filepath.Join(".emigo", "rules.md"),
}

var projectIndicators = []struct {
	name     string
	patterns []string
}{
	{"Go", []string{"go.mod"}},
	{"Node.js", []string{"package.json"}},
	{"Python", []string{"pyproject.toml", "setup.py", "requirements.txt"}},
	{"Rust", []string{"Cargo.toml"}},
	{"Java", []string{"pom.xml", "build.gradle"}},
	{"Ruby", []string{"Gemfile"}},
	{"PHP", []string{"composer.json"}},
	{"C#", []string{"*.csproj", "*.sln"}},
	{"Elixir", []string{"mix.exs"}},
	{"Emacs Lisp", []string{"*.el"}},
}

// systemMessage composes the system prompt for root.
func (a *Assembler) systemMessage(root string) string {
	parts := []string{a.systemPrompt}
	parts = append(parts, a.environmentContext(root))
	if rules := a.loadRules(root); rules != "" {
		parts = append(parts, rules)
	}
	return strings.Join(parts, "\n\n")
}

func (a *Assembler) environmentContext(root string) string {
	var env strings.Builder

	env.WriteString("# Environment Information\n\n")
	env.WriteString(fmt.Sprintf("Working Directory: %s\n", root))
	env.WriteString(fmt.Sprintf("Current Date: %s\n", a.now().Format("2006-01-02")))
	env.WriteString(fmt.Sprintf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH))
	if projectType := detectProjectType(a.fs, root); projectType != "" {
		env.WriteString(fmt.Sprintf("Project Type: %s\n", projectType))
	}

	return strings.TrimRight(env.String(), "\n")
}

// loadRules concatenates workspace rules files and configured
// instructions. Missing files are ignored.
func (a *Assembler) loadRules(root string) string {
	var sections []string
	seen := make(map[string]bool)

	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		content, err := afero.ReadFile(a.fs, path)
		if err != nil || len(strings.TrimSpace(string(content))) == 0 {
			return
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = path
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", filepath.ToSlash(rel), strings.TrimSpace(string(content))))
	}

	for _, name := range rulesFiles {
		add(filepath.Join(root, name))
	}
	for _, instr := range a.instructions {
		if filepath.IsAbs(instr) {
			add(instr)
		} else {
			add(filepath.Join(root, instr))
		}
	}

	if len(sections) == 0 {
		return ""
	}
	return "# Project Rules\n\n" + strings.Join(sections, "\n\n")
}

func detectProjectType(fs afero.Fs, root string) string {
	for _, ind := range projectIndicators {
		for _, pattern := range ind.patterns {
			matches, _ := afero.Glob(fs, filepath.Join(root, pattern))
			if len(matches) > 0 {
				return ind.name
			}
		}
	}
	return ""
}

func defaultNow() time.Time { return time.Now() }
