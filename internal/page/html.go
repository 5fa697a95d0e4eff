package page

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// compiledSelectors holds the parsed form of Selectors for one parse.
type compiledSelectors struct {
	question cascadia.Selector
	choice   cascadia.Selector
	header   cascadia.Selector
	session  cascadia.Selector
}

func compile(sel Selectors) (*compiledSelectors, error) {
	var (
		c   compiledSelectors
		err error
	)
	for _, item := range []struct {
		name string
		src  string
		dst  *cascadia.Selector
	}{
		{"question", sel.Question, &c.question},
		{"choice", sel.Choice, &c.choice},
		{"header", sel.Header, &c.header},
		{"session", sel.Session, &c.session},
	} {
		*item.dst, err = cascadia.Compile(item.src)
		if err != nil {
			return nil, fmt.Errorf("compile %s selector %q: %w", item.name, item.src, err)
		}
	}
	return &c, nil
}

// ParseHTML reads a saved quiz page and returns its snapshot. Questions
// without an id are returned with an empty ID and no choices; the catalog
// builder decides what to keep.
func ParseHTML(r io.Reader, sel Selectors) (*Snapshot, error) {
	sel = sel.WithDefaults()
	cs, err := compile(sel)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	snap := &Snapshot{}
	if h := cs.header.MatchFirst(doc); h != nil {
		snap.QuizID = getAttr(h, sel.QuizIDAttr)
	}
	if s := cs.session.MatchFirst(doc); s != nil {
		snap.SessionID = coalesce(getAttr(s, "value"), getAttr(s, "data-value"))
	}

	byID := indexByID(doc)
	for _, qn := range cs.question.MatchAll(doc) {
		q := Question{ID: getAttr(qn, sel.QuestionIDAttr)}
		if q.ID != "" {
			idx := 0
			for _, cn := range cs.choice.MatchAll(qn) {
				if cn == qn {
					continue
				}
				if input, ok := byID[sel.InputID(q.ID, idx)]; ok {
					q.Choices = append(q.Choices, Choice{
						Token: getAttr(input, "value"),
						Label: innerText(cn),
						Slot:  idx,
					})
				}
				idx++
			}
		}
		snap.Questions = append(snap.Questions, q)
	}
	return snap, nil
}

// ParseFile is ParseHTML over a file on disk.
func ParseFile(path string, sel Selectors) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return ParseHTML(f, sel)
}

// indexByID maps element ids to the first element carrying them,
// mirroring document.getElementById.
func indexByID(root *html.Node) map[string]*html.Node {
	out := make(map[string]*html.Node)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := getAttr(n, "id"); id != "" {
				if _, seen := out[id]; !seen {
					out[id] = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// innerText approximates the rendered text of a node: text nodes joined
// with whitespace collapsed, script and style skipped.
func innerText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
