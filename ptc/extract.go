package ptc

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// CodeBlockTags are the opening and closing delimiters of a code block.
type CodeBlockTags struct {
	Open  string
	Close string
}

var (
	// XMLCodeTags is the default: <code>...</code>.
	XMLCodeTags = CodeBlockTags{Open: "<code>", Close: "</code>"}
	// MarkdownCodeTags is a fenced python block.
	MarkdownCodeTags = CodeBlockTags{Open: "```python", Close: "```"}
)

func (t CodeBlockTags) String() string {
	return t.Open + "," + t.Close
}

// CloseInOpen reports whether the closing tag is part of the opening tag, in
// which case it cannot be used as a stop sequence.
func (t CodeBlockTags) CloseInOpen() bool {
	return strings.Contains(t.Open, t.Close)
}

// ParseCodeBlockTags accepts "xml", "markdown" or an explicit "open,close" pair.
func ParseCodeBlockTags(s string) (CodeBlockTags, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xml":
		return XMLCodeTags, nil
	case "markdown", "md":
		return MarkdownCodeTags, nil
	}
	openTag, closeTag, ok := strings.Cut(s, ",")
	if !ok || openTag == "" || closeTag == "" {
		return CodeBlockTags{}, fmt.Errorf("invalid code block tags %q: want xml, markdown or open,close", s)
	}
	return CodeBlockTags{Open: openTag, Close: closeTag}, nil
}

// Extractor finds the code to run in a model output.
type Extractor interface {
	Extract(text string, tags CodeBlockTags) (string, bool)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(text string, tags CodeBlockTags) (string, bool)

func (f ExtractorFunc) Extract(text string, tags CodeBlockTags) (string, bool) {
	return f(text, tags)
}

var (
	// AnchoredLastBlock returns the last block whose opening tag starts a
	// line. Thinking models often draft code inline in their preamble; those
	// drafts are skipped.
	AnchoredLastBlock Extractor = ExtractorFunc(extractAnchoredLast)
	// UnanchoredLastBlock returns the last block wherever it opens.
	UnanchoredLastBlock Extractor = ExtractorFunc(extractUnanchoredLast)
	// AllBlocks joins every block with a blank line.
	AllBlocks Extractor = ExtractorFunc(extractAll)
)

// DefaultExtractor is used when none is configured.
var DefaultExtractor = AnchoredLastBlock

// Extract runs DefaultExtractor.
func Extract(text string, tags CodeBlockTags) (string, bool) {
	return DefaultExtractor.Extract(text, tags)
}

// ParseExtractor maps "anchored", "unanchored" and "all" to an Extractor.
func ParseExtractor(name string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anchored":
		return AnchoredLastBlock, nil
	case "unanchored":
		return UnanchoredLastBlock, nil
	case "all":
		return AllBlocks, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}

type patternKey struct {
	tags     CodeBlockTags
	anchored bool
}

var patterns sync.Map // patternKey -> *regexp.Regexp

func blockPattern(tags CodeBlockTags, anchored bool) *regexp.Regexp {
	key := patternKey{tags: tags, anchored: anchored}
	if re, ok := patterns.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	expr := "(?s)" + regexp.QuoteMeta(tags.Open) + "(.*?)" + regexp.QuoteMeta(tags.Close)
	if anchored {
		expr = "(?ms)^" + regexp.QuoteMeta(tags.Open) + "(.*?)" + regexp.QuoteMeta(tags.Close)
	}
	re := regexp.MustCompile(expr)
	patterns.Store(key, re)
	return re
}

func lastMatch(re *regexp.Regexp, text string) (string, bool) {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}

func extractAnchoredLast(text string, tags CodeBlockTags) (string, bool) {
	return lastMatch(blockPattern(tags, true), text)
}

func extractUnanchoredLast(text string, tags CodeBlockTags) (string, bool) {
	return lastMatch(blockPattern(tags, false), text)
}

func extractAll(text string, tags CodeBlockTags) (string, bool) {
	matches := blockPattern(tags, false).FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	blocks := make([]string, len(matches))
	for i, m := range matches {
		blocks[i] = strings.TrimSpace(m[1])
	}
	return strings.Join(blocks, "\n\n"), true
}
