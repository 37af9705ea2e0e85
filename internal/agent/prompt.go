package agent

import (
	"fmt"

	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/textutil"
)

// TrimMarker is appended to every prompt shortened by fast mode.
const TrimMarker = "\n...[trimmed]..."

const diffRules = `
REQUIREMENTS (very important):
- Prefer UNIFIED DIFFS inside ` + "```diff" + ` fences:
  - Existing file: headers MUST be '--- a/<path>' and '+++ b/<path>'.
  - New file: use '--- /dev/null' then '+++ b/<path>'.
  - Include @@ hunks with exact line numbers.
- If (and only if) you cannot reliably produce a diff, emit a FULL FILE inside a fenced block
  (` + "```java, ```yaml or ```json" + `) whose first line is a header:
  // FILE: <relative/path/from/repo/root>     (use # FILE: for yaml)
  followed by the entire updated file.
- Do NOT output prose around diffs/snippets, only the code/diff blocks.
- Keep changes minimal and compilable.
`

const strictDiffSuffix = `

STRICT OUTPUT MODE (previous answer contained no usable diff):
- Output ONLY one or more ` + "```diff" + ` fenced blocks. No explanations, no headings, no other fences.
- Every block MUST start with '--- a/<path>' (or '--- /dev/null' for a new file) followed by '+++ b/<path>'.
- Every block MUST contain at least one '@@ -<line>,<count> +<line>,<count> @@' hunk.
- Paths are relative to the repository root.
`

// PromptInput carries the rendered stage outputs a prompt set is built from.
type PromptInput struct {
	Failures  string
	Code      string
	Specs     string
	Config    string
	FileIndex string
}

// PromptSet holds one prompt per completion role.
type PromptSet struct {
	Summary   string
	API       string
	Spec      string
	Specmatic string
	Diffs     string
}

// Get returns the prompt for role.
func (p PromptSet) Get(role string) (string, error) {
	switch role {
	case config.RoleSummary:
		return p.Summary, nil
	case config.RoleAPI:
		return p.API, nil
	case config.RoleSpec:
		return p.Spec, nil
	case config.RoleSpecmatic:
		return p.Specmatic, nil
	case config.RoleDiffs:
		return p.Diffs, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// Trimmed applies each role's character ceiling independently. Roles without a
// positive limit are left untouched.
func (p PromptSet) Trimmed(limits map[string]int) PromptSet {
	return PromptSet{
		Summary:   trimPrompt(p.Summary, limits[config.RoleSummary]),
		API:       trimPrompt(p.API, limits[config.RoleAPI]),
		Spec:      trimPrompt(p.Spec, limits[config.RoleSpec]),
		Specmatic: trimPrompt(p.Specmatic, limits[config.RoleSpecmatic]),
		Diffs:     trimPrompt(p.Diffs, limits[config.RoleDiffs]),
	}
}

func trimPrompt(s string, limit int) string {
	return textutil.Truncate(s, limit, TrimMarker)
}

// strictDiffPrompt is the second-attempt diffs prompt: always fast-trimmed,
// with the stricter instructions appended after the trim.
func strictDiffPrompt(fullDiffs string, limit int) string {
	return trimPrompt(fullDiffs, limit) + strictDiffSuffix
}

// BuildPrompts composes the five role prompts. It has no side effects.
func BuildPrompts(in PromptInput) PromptSet {
	return PromptSet{
		Summary: fmt.Sprintf(`
You are a senior QA+Backend agent.
Summarize Specmatic/JUnit failures by endpoint and cause. Classify each failure as:
(a) API behavior bug, (b) wrong OpenAPI spec, (c) Specmatic config, (d) test data.
Return a short actionable list.

%s

PARSED_RESULTS:
%s
`, diffRules, in.Failures),

		API: fmt.Sprintf(`
You are a senior Java engineer. Generate ACTUAL CHANGES to pass Specmatic tests.

%s

CONTEXT:
- Important code files and bits:
%s

- File index (paths you may edit or create under repo root):
%s

FAILURES (root cause to fix in code first unless spec is wrong):
%s
`, diffRules, in.Code, in.FileIndex, in.Failures),

		Spec: fmt.Sprintf(`
You are an OpenAPI expert. If the failures indicate SPEC mismatch, produce minimal OpenAPI edits.

%s

OPENAPI CONTEXT:
%s

FILE INDEX (so you know candidate spec file paths):
%s

FAILURES:
%s
`, diffRules, in.Specs, in.FileIndex, in.Failures),

		Specmatic: fmt.Sprintf(`
You are a Specmatic power user. If config is the issue, emit minimal config edits (json/yaml).

%s

CURRENT CONFIG:
%s

FILE INDEX:
%s

FAILURES:
%s
`, diffRules, in.Config, in.FileIndex, in.Failures),

		Diffs: fmt.Sprintf(`
You are a code-mod agent. Emit ONLY minimal unified diffs (or full-file code blocks if necessary) to fix the failures.

%s

PRIORITY ORDER:
1) API Java code (controllers, services, DTOs) to meet the contract
2) Then spec edits if the contract is wrong
3) Then Specmatic config tweaks

CODE CONTEXT:
%s

OPENAPI CONTEXT:
%s

SPECMATIC CONFIG:
%s

FILE INDEX:
%s

FAILURES:
%s
`, diffRules, in.Code, in.Specs, in.Config, in.FileIndex, in.Failures),
	}
}
