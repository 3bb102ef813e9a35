package preview

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/pagesmith/internal/plugins"
)

// DocumentOptions controls the shell around rendered content.
type DocumentOptions struct {
	Title string
	Lang  string
}

const (
	defaultTitle = "Pagesmith Preview"
	defaultLang  = "en"
)

func (o DocumentOptions) withDefaults() DocumentOptions {
	if o.Title == "" {
		o.Title = defaultTitle
	}
	if o.Lang == "" {
		o.Lang = defaultLang
	}
	return o
}

// headElements are the elements that only make sense inside <head>.
var headElements = map[atom.Atom]bool{
	atom.Link:  true,
	atom.Style: true,
	atom.Meta:  true,
	atom.Base:  true,
}

// Placement says where a fragment goes in the document.
type Placement int

const (
	PlacementHead Placement = iota
	PlacementBody
)

// Classify places a fragment by its first element: links, styles, metas and
// bases go in the head; everything else, scripts included, goes at the end of
// the body.
func Classify(fragment string) Placement {
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return PlacementBody
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if headElements[atom.Lookup(name)] {
				return PlacementHead
			}
			return PlacementBody
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) != "" {
				return PlacementBody
			}
		}
	}
}

// Assemble wraps content in a complete HTML document carrying the plugin
// fragments. Fragment order is preserved within the head and within the body.
func Assemble(ctx context.Context, content string, fragments []plugins.Fragment, opts DocumentOptions) (string, error) {
	var sb strings.Builder
	if err := Shell(content, fragments, opts).Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Shell returns the document as a templ component.
func Shell(content string, fragments []plugins.Fragment, opts DocumentOptions) templ.Component {
	opts = opts.withDefaults()

	var head, tail []templ.Component
	for _, f := range fragments {
		if Classify(f.HTML) == PlacementHead {
			head = append(head, templ.Raw(f.HTML))
		} else {
			tail = append(tail, templ.Raw(f.HTML))
		}
	}

	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="`+templ.EscapeString(opts.Lang)+`"><head>`+
			`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(opts.Title)+`</title>`); err != nil {
			return err
		}
		if err := templ.Join(head...).Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</head><body>`); err != nil {
			return err
		}
		if err := templ.Raw(content).Render(ctx, w); err != nil {
			return err
		}
		if err := templ.Join(tail...).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}
