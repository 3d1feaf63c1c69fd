package htmlutil

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// Lookup evaluates a selector against the document and returns the text of
// the first match, trimmed. ok is false when the selector matches nothing or
// the matched node contains no text; callers decide what stands in for a
// missing value. Lookup never panics regardless of the selector or document.
func Lookup(doc *goquery.Document, selector string) (text string, ok bool) {
	if doc == nil {
		return "", false
	}
	defer func() {
		if recover() != nil {
			text = ""
			ok = false
		}
	}()

	sel := doc.Find(selector)
	if len(sel.Nodes) == 0 {
		return "", false
	}
	text = GetText(sel.Nodes[0])
	text = removeNonPrintable(text)
	text = strings.Trim(text, " \t\n")
	if text == "" {
		return "", false
	}
	return text, true
}
