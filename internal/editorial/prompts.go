// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package editorial holds the newsroom steps built on the generation port:
// query rewriting, planning, drafting and critique.
package editorial

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// Prompt names double as override file names: <dir>/<name>.txt.
const (
	PromptPlanner = "planner"
	PromptDrafter = "drafter"
	PromptCritic  = "critic"
	PromptQuery   = "query"
)

// Section names inside a prompt file.
const (
	SectionSystem = "system"
	SectionUser   = "user"
)

// previewRunes caps each passage shown to the model.
const previewRunes = 2000

var sectionPattern = regexp.MustCompile(`^\[\[([A-Za-z0-9_\-]+)\]\]\s*$`)

// ParseSections splits a prompt file on [[section]] marker lines. Text
// before the first marker belongs to "default". Names are lowercased and
// empty sections are dropped.
func ParseSections(text string) map[string]string {
	sections := make(map[string]*strings.Builder)
	current := "default"
	sections[current] = &strings.Builder{}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if m := sectionPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			current = strings.ToLower(m[1])
			if sections[current] == nil {
				sections[current] = &strings.Builder{}
			}
			continue
		}
		sections[current].WriteString(line)
		sections[current].WriteByte('\n')
	}

	out := make(map[string]string, len(sections))
	for name, b := range sections {
		if s := strings.TrimSpace(b.String()); s != "" {
			out[name] = s
		}
	}
	return out
}

// Prompt is a pair of system and user templates.
type Prompt struct {
	system *template.Template
	user   *template.Template
}

// LoadPrompt returns the named prompt, with sections from <dir>/<name>.txt
// replacing the built-in defaults. A missing file or empty dir means
// defaults only. A "default" section in the file stands in for "system".
func LoadPrompt(dir, name string) (*Prompt, error) {
	defaults, ok := defaultPrompts[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	sections := map[string]string{
		SectionSystem: defaults[SectionSystem],
		SectionUser:   defaults[SectionUser],
	}

	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name+".txt"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading prompt %s: %w", name, err)
		default:
			custom := ParseSections(string(data))
			if v, ok := custom["default"]; ok {
				sections[SectionSystem] = v
			}
			for k, v := range custom {
				if k != "default" {
					sections[k] = v
				}
			}
		}
	}

	sys, err := template.New(name + ".system").Funcs(funcs).Parse(sections[SectionSystem])
	if err != nil {
		return nil, fmt.Errorf("parsing %s system prompt: %w", name, err)
	}
	usr, err := template.New(name + ".user").Funcs(funcs).Parse(sections[SectionUser])
	if err != nil {
		return nil, fmt.Errorf("parsing %s user prompt: %w", name, err)
	}
	return &Prompt{system: sys, user: usr}, nil
}

// MustLoadPrompt returns the built-in prompt. It panics on an unknown name.
func MustLoadPrompt(name string) *Prompt {
	p, err := LoadPrompt("", name)
	if err != nil {
		panic(err)
	}
	return p
}

// Render executes both templates with data.
func (p *Prompt) Render(data any) (system, user string, err error) {
	var sb, ub bytes.Buffer
	if err := p.system.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("rendering system prompt: %w", err)
	}
	if err := p.user.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("rendering user prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}

var funcs = template.FuncMap{
	"sources": FormatSources,
}

// FormatSources renders passages as "--- Source: X ---" blocks, each text
// capped at 2000 runes.
func FormatSources(passages []types.Passage) string {
	var b strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&b, "\n--- Source: %s ---\n%s\n", p.Source, preview(p.Text))
	}
	return b.String()
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

var defaultPrompts = map[string]map[string]string{
	PromptQuery: {
		SectionSystem: `You turn editorial briefs into search queries for a news archive.
Reply with one line of 5 to 12 keywords, most important first, no punctuation other than spaces.`,
		SectionUser: `Brief: {{.Brief}}`,
	},
	PromptPlanner: {
		SectionSystem: `You are a helpful assistant specialized in creating detailed plans for press articles.
Give an exhaustive plan with title, subtitles and the sources each section draws on.
{{if .Passages}}
Be inspired by these relevant articles:
{{sources .Passages}}{{end}}`,
		SectionUser: `{{if .Passages}}Based on the request below and the articles provided in the system context, create a comprehensive plan for the article.{{else}}Create a comprehensive plan for the following article request.{{end}}

Request: {{.Brief}}

The plan should include:
- A compelling title
- Clear subtitles and sections
{{- if .Passages}}
- References to the relevant articles provided{{end}}
- A structured outline that addresses the request`,
	},
	PromptDrafter: {
		SectionSystem: `You are an experienced journalist writing long-form press articles in English.
{{if .Passages}}
Reference articles for context (cite these sources when you use them):
{{sources .Passages}}{{end}}`,
		SectionUser: `Write a complete, well-formatted press article based on the following information.

Request: {{.Brief}}
{{if .Plan}}
Plan to follow:
{{.Plan}}
{{end}}
{{- if .Feedback}}
Feedback to incorporate:
{{.Feedback}}
{{end}}
The article should:
- Follow the plan structure closely
- Have a clear title, subtitles and paragraphs
- Use an appropriate journalistic style and tone
- Use information from the reference articles when relevant
- Cite a source each time a fact, quote or idea comes from it, as [source: FILENAME]
- Be complete and ready for publication
{{- if .Feedback}}
- Address the feedback above{{end}}`,
	},
	PromptCritic: {
		SectionSystem: `You are an experienced editor-in-chief evaluating press articles.
You are objective, precise and encouraging, but demanding about the quality of content and form.
Analyse content, structure, style, clarity and relevance, then give an overall score out of 10 (decimals allowed).`,
		SectionUser: `Article to critique:
{{.Draft}}

Your response MUST strictly follow this JSON format:
{
  "comments": {
    "strengths": ["successful aspects, qualities, positive points"],
    "improvements": ["weaknesses, corrections, concrete suggestions"]
  },
  "note": 7.5
}
Return ONLY the JSON, with no text outside it.`,
	},
}
