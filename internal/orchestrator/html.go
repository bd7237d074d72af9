package orchestrator

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mimcmahon20/Shelly/internal/engine"
	"github.com/mimcmahon20/Shelly/internal/vfs"
)

// IndexFile — точка входа HTML-документа в VFS.
const IndexFile = "index.html"

// RenderHTML возвращает выход html-renderer узла.
//
// Если в VFS есть index.html, собирает из него один документ, подставляя
// содержимое файлов VFS вместо <link rel="stylesheet" href> и <script src>.
// Иначе пропускает вход дальше, извлекая поле html из объекта.
func RenderHTML(fs vfs.FS, input any) any {
	index, ok := fs.Get(IndexFile)
	if !ok {
		if v, ok := engine.ResolvePath(input, "html"); ok {
			return v
		}
		return input
	}

	doc, err := InlineAssets(index, fs)
	if err != nil {
		return index
	}
	return doc
}

// InlineAssets встраивает стили и скрипты из VFS в документ.
// Ссылки на файлы, которых нет в VFS, остаются как есть.
func InlineAssets(document string, fs vfs.FS) (string, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", err
	}

	type replacement struct {
		old, new *html.Node
	}
	var (
		replacements []replacement
		scripts      []*html.Node
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Link:
				if isStylesheet(n) {
					if css, ok := fs.Get(assetPath(attr(n, "href"))); ok {
						replacements = append(replacements, replacement{old: n, new: styleNode(css)})
					}
				}
			case atom.Script:
				if src := attr(n, "src"); src != "" && fs.Has(assetPath(src)) {
					scripts = append(scripts, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	for _, r := range replacements {
		r.old.Parent.InsertBefore(r.new, r.old)
		r.old.Parent.RemoveChild(r.old)
	}
	for _, s := range scripts {
		path := assetPath(attr(s, "src"))
		js, _ := fs.Get(path)
		removeAttr(s, "src")
		for s.FirstChild != nil {
			s.RemoveChild(s.FirstChild)
		}
		s.AppendChild(&html.Node{Type: html.TextNode, Data: js})
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isStylesheet(n *html.Node) bool {
	for _, rel := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
		if rel == "stylesheet" {
			return true
		}
	}
	return false
}

// assetPath приводит ссылку к пути VFS: "./css/a.css" и "/css/a.css" → "css/a.css".
func assetPath(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimPrefix(ref, "./")
	return strings.TrimPrefix(ref, "/")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

func styleNode(css string) *html.Node {
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	return style
}
