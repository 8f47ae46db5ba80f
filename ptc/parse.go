package ptc

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxContentLength is the default limit of TruncateContent.
const MaxContentLength = 20000

// SyntaxChecker validates code without running it.
type SyntaxChecker interface {
	Check(code string) error
}

var markdownFallbackTags = []CodeBlockTags{
	{Open: "```python", Close: "\n```"},
	{Open: "```py", Close: "\n```"},
}

// ParseCodeBlobs returns the code to run from a model output: the block the
// extractor selects, else a fenced python block, else the whole text when it
// is valid code on its own.
func ParseCodeBlobs(text string, tags CodeBlockTags, extractor Extractor, checker SyntaxChecker) (string, error) {
	if extractor == nil {
		extractor = DefaultExtractor
	}
	if code, ok := extractor.Extract(text, tags); ok {
		return code, nil
	}
	for _, fallback := range markdownFallbackTags {
		if code, ok := extractor.Extract(text, fallback); ok {
			return code, nil
		}
	}
	if checker != nil && strings.TrimSpace(text) != "" && checker.Check(text) == nil {
		return text, nil
	}

	if strings.Contains(text, "final") && strings.Contains(text, "answer") {
		return "", fmt.Errorf("Your code snippet is invalid, because the regex pattern %s(.*?)%s was not found in it.\n"+
			"Here is your code snippet:\n%s\n"+
			"It seems like you're trying to return the final answer, you can do it as follows:\n"+
			"%s\nfinal_answer(\"YOUR FINAL ANSWER HERE\")\n%s",
			tags.Open, tags.Close, text, tags.Open, tags.Close)
	}
	return "", fmt.Errorf("Your code snippet is invalid, because the regex pattern %s(.*?)%s was not found in it.\n"+
		"Here is your code snippet:\n%s\n"+
		"Make sure to include code with the correct pattern, for instance:\n"+
		"Thoughts: Your thoughts\n%s\n# Your python code here\n%s",
		tags.Open, tags.Close, text, tags.Open, tags.Close)
}

const finalAnswerIdent = "final_answer"

// FixFinalAnswerCode renames a variable called final_answer to
// final_answer_variable when the code both assigns it and calls the
// final_answer tool. Calls and attribute accesses are left alone.
func FixFinalAnswerCode(code string) string {
	if !strings.Contains(code, finalAnswerIdent+"(") {
		return code
	}

	type occurrence struct {
		start, end int
		call       bool
		assignment bool
	}
	var found []occurrence
	assigned := false
	for offset := 0; ; {
		i := strings.Index(code[offset:], finalAnswerIdent)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(finalAnswerIdent)
		offset = end
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(code[:start])
			if prev == '.' || isWordRune(prev) {
				continue
			}
		}
		if end < len(code) {
			next, _ := utf8.DecodeRuneInString(code[end:])
			if isWordRune(next) {
				continue
			}
		}
		rest := strings.TrimLeftFunc(code[end:], unicode.IsSpace)
		occ := occurrence{
			start:      start,
			end:        end,
			call:       strings.HasPrefix(rest, "("),
			assignment: strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "=="),
		}
		assigned = assigned || occ.assignment
		found = append(found, occ)
	}
	if !assigned {
		return code
	}

	var b strings.Builder
	last := 0
	for _, occ := range found {
		if occ.call {
			continue
		}
		b.WriteString(code[last:occ.start])
		b.WriteString("final_answer_variable")
		last = occ.end
	}
	b.WriteString(code[last:])
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// TruncateContent keeps the head and tail of content when it is longer than
// maxLength characters. A maxLength of zero or less means MaxContentLength.
func TruncateContent(content string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = MaxContentLength
	}
	runes := []rune(content)
	if len(runes) <= maxLength {
		return content
	}
	half := maxLength / 2
	return string(runes[:half]) +
		fmt.Sprintf("\n..._This content has been truncated to stay below %d characters_...\n", maxLength) +
		string(runes[len(runes)-half:])
}
