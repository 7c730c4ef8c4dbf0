package extract

import (
	"regexp"
	"strings"
)

var (
	goFuncRe   = regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	pyFuncRe   = regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	jsFuncRe   = regexp.MustCompile(`^\s*(?:async\s+)?function\s*\*?\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	classRe    = regexp.MustCompile(`^\s*(?:export\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	goStructRe = regexp.MustCompile(`^\s*type\s+([A-Za-z_][A-Za-z0-9_]*)\s+struct\b`)
)

// Heuristic extracts entities by matching declaration openers and capturing
// the indented block that follows. It knows nothing about any particular
// grammar, which makes it wrong occasionally and useful everywhere.
type Heuristic struct{}

// NewHeuristic creates the generic line-indentation extractor
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Extract scans the source line by line for function and class openers.
func (h *Heuristic) Extract(code string) (Extraction, error) {
	out := Extraction{Classes: make(map[string]Entity)}
	if strings.TrimSpace(code) == "" {
		return out, nil
	}

	lines := strings.Split(code, "\n")
	for i := range lines {
		name, isClass, ok := matchOpener(lines[i])
		if !ok {
			continue
		}

		end := blockEnd(lines, i)
		entity := Entity{
			Name:      name,
			Code:      strings.Join(lines[i:end+1], "\n"),
			StartLine: i + 1,
			EndLine:   end + 1,
		}

		if isClass {
			out.Classes[name] = entity
		} else {
			out.Functions = append(out.Functions, entity)
		}
	}

	return out, nil
}

func matchOpener(line string) (name string, isClass bool, ok bool) {
	for _, re := range []*regexp.Regexp{goFuncRe, pyFuncRe, jsFuncRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], false, true
		}
	}
	for _, re := range []*regexp.Regexp{classRe, goStructRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], true, true
		}
	}
	return "", false, false
}

// blockEnd finds the last line of the block opened at lines[start]: every
// following line indented deeper than the opener belongs to it, plus a
// trailing closer at the opener's own indentation.
func blockEnd(lines []string, start int) int {
	opener := indentWidth(lines[start])
	end := start

	for j := start + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			continue
		}

		depth := indentWidth(lines[j])
		if depth > opener {
			end = j
			continue
		}

		if depth == opener && isCloser(trimmed) {
			return j
		}
		break
	}

	return end
}

func indentWidth(line string) int {
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += 4
		default:
			return width
		}
	}
	return width
}

func isCloser(trimmed string) bool {
	switch trimmed {
	case "}", "};", ")", ");", "end":
		return true
	}
	return false
}
