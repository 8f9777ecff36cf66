package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ResponseParser extracts a structured value from a response body.
type ResponseParser interface {
	Parse(r io.Reader) (any, error)
}

// ParserFunc adapts a function to [ResponseParser].
type ParserFunc func(r io.Reader) (any, error)

func (f ParserFunc) Parse(r io.Reader) (any, error) { return f(r) }

// Code statuses read by [CodeParser].
const (
	CodeOK = "ok"
	CodeKO = "ko"
)

// CodeResult is the outcome of a widget action.
type CodeResult struct {
	Status string `json:"status"`
}

// CodeParser reads widget action answers: {"code":"OK"} or {"code":"KO"}.
// Any other code is an error with status 500.
var CodeParser ResponseParser = ParserFunc(parseCode)

func parseCode(r io.Reader) (any, error) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, WithStatus(fmt.Errorf("decode action response: %w", err), http.StatusInternalServerError)
	}

	switch body.Code {
	case "OK":
		return &CodeResult{Status: CodeOK}, nil
	case "KO":
		return &CodeResult{Status: CodeKO}, nil
	default:
		return nil, WithStatus(fmt.Errorf("%w: code %q", ErrUnknownFormat, body.Code), http.StatusInternalServerError)
	}
}

// LoginResult is the answer of the login form.
type LoginResult struct {
	Redirect string `json:"redirect"`
	SiteID   int    `json:"siteId"`
}

// LoginParser reads {"rdt":["https://myfox.me/home/1234",0]}.
var LoginParser ResponseParser = ParserFunc(parseLogin)

func parseLogin(r io.Reader) (any, error) {
	var body struct {
		Redirect []any `json:"rdt"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, WithStatus(fmt.Errorf("decode login response: %w", err), http.StatusInternalServerError)
	}
	if len(body.Redirect) == 0 {
		return nil, ErrLoginFailed
	}

	redirect, ok := body.Redirect[0].(string)
	if !ok {
		return nil, WithStatus(fmt.Errorf("%w: redirect is %T", ErrUnknownFormat, body.Redirect[0]), http.StatusInternalServerError)
	}

	siteID, err := ParseSiteID(redirect)
	if err != nil {
		return nil, WithStatus(err, http.StatusInternalServerError)
	}

	return &LoginResult{Redirect: redirect, SiteID: siteID}, nil
}

// Home is what the home page tells about the site.
type Home struct {
	SiteName string `json:"siteName"`
	// MasterStatus holds the classes of the master status icons, "icon" excluded.
	MasterStatus []string `json:"masterStatus"`
}

// HomeParser reads the home page.
var HomeParser ResponseParser = ParserFunc(parseHome)

func parseHome(r io.Reader) (any, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, WithStatus(fmt.Errorf("parse home page: %w", err), http.StatusInternalServerError)
	}

	home := &Home{}

	if status := findFirst(doc, isElement(atom.Div, "masterStatus", "")); status != nil {
		for link := status.FirstChild; link != nil; link = link.NextSibling {
			if link.DataAtom != atom.A {
				continue
			}
			for span := link.FirstChild; span != nil; span = span.NextSibling {
				if !isElement(atom.Span, "", "icon")(span) {
					continue
				}
				for _, class := range classes(span) {
					if class != "icon" && !slices.Contains(home.MasterStatus, class) {
						home.MasterStatus = append(home.MasterStatus, class)
					}
				}
			}
		}
	}

	if panel := findFirst(doc, isElement(atom.Div, "userPanel", "")); panel != nil {
		if site := findFirst(panel, isElement(atom.Span, "", "site")); site != nil {
			for link := site.FirstChild; link != nil; link = link.NextSibling {
				if link.DataAtom == atom.A {
					home.SiteName = strings.TrimSpace(textContent(link))
					break
				}
			}
		}
	}

	if home.SiteName == "" && len(home.MasterStatus) == 0 {
		return nil, WithStatus(fmt.Errorf("%w: no site information in home page", ErrUnknownFormat), http.StatusInternalServerError)
	}

	return home, nil
}

// pageTitle returns the text of the first <title> element of an HTML document.
func pageTitle(data []byte) string {
	z := html.NewTokenizer(bytes.NewReader(data))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = atom.Lookup(name) == atom.Title
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}

func isElement(a atom.Atom, id, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != a {
			return false
		}
		if id != "" && attr(n, "id") != id {
			return false
		}
		if class != "" && !slices.Contains(classes(n), class) {
			return false
		}
		return true
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classes(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
