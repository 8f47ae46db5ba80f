package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/gatewaylab/agentrun/memory"
)

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Agent transcript</title>
</head>
<body>
<main class="transcript">
{{- range .}}
<section class="message" data-agent="{{.Agent}}" data-role="{{.Role}}">
<h2>{{.Agent}} · {{.Role}}</h2>
<div class="content">{{.Body}}</div>
</section>
{{- end}}
</main>
</body>
</html>
`))

type htmlEntry struct {
	Agent string
	Role  string
	Body  template.HTML
}

func writeHTML(w io.Writer, entries []Entry) error {
	sanitizer := bluemonday.UGCPolicy()
	items := make([]htmlEntry, 0, len(entries))
	for _, e := range entries {
		body := sanitizer.SanitizeBytes(renderMarkdown(markdownBody(e)))
		items = append(items, htmlEntry{
			Agent: strings.ToUpper(e.Agent),
			Role:  strings.ToUpper(string(e.Role)),
			Body:  template.HTML(body),
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, items); err != nil {
		return fmt.Errorf("failed to render transcript: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// markdownBody fences tool traffic so it renders verbatim.
func markdownBody(e Entry) string {
	switch e.Role {
	case memory.RoleToolCall, memory.RoleToolResponse:
		return "```\n" + strings.ReplaceAll(e.Content, "```", "'''") + "\n```\n"
	}
	return e.Content
}

func renderMarkdown(text string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(text))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.Render(doc, renderer)
}
