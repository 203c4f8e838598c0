package explorer

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/fruitsalade/explorer/pkg/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Preview renders the local content of an open session as HTML. Markdown
// is rendered; any other text is escaped into a <pre> block.
func (c *Controller) Preview(id string) (string, error) {
	sess, err := c.windows.Get(id)
	if err != nil {
		return "", err
	}
	return render(sess.File)
}

func render(f models.FileRecord) (string, error) {
	var buf bytes.Buffer
	content := f.Text()
	if isMarkdown(f) {
		if err := markdown.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("render %s: %w", f.Name, err)
		}
		return buf.String(), nil
	}
	buf.WriteString("<pre>")
	buf.WriteString(html.EscapeString(content))
	buf.WriteString("</pre>\n")
	return buf.String(), nil
}
