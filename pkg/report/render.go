// Package report turns a Markdown test report into a standalone HTML page.
package report

import (
	"bytes"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// RenderToHTML converts markdown text to sanitized HTML. Scenario names,
// patterns and daemon output end up in the report unescaped, so the result is
// passed through bluemonday before it is embedded.
func RenderToHTML(markdown string) string {
	unsafeHTML := blackfriday.Run(
		[]byte(markdown),
		blackfriday.WithExtensions(
			blackfriday.CommonExtensions|
				blackfriday.AutoHeadingIDs,
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")

	return string(policy.SanitizeBytes(unsafeHTML))
}

const style = `body{font-family:sans-serif;max-width:60em;margin:2em auto;padding:0 1em}
table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:.2em .6em;text-align:left}
pre{background:#f4f4f4;padding:.6em;overflow-x:auto}`

// Page wraps the rendered markdown in a complete HTML document.
func Page(title, markdown string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title>\n<style>")
	buf.WriteString(style)
	buf.WriteString("</style>\n</head>\n<body>\n")
	buf.WriteString(RenderToHTML(markdown))
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}
