package tgui

import (
	"html"
	"strings"
)

// H is Telegram HTML that is already escaped.
type H string

func (h H) String() string { return string(h) }

func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw trusts s as markup.
func Raw(s string) H { return H(s) }

func B(s string) H { return "<b>" + Esc(s) + "</b>" }

func Link(text, href string) H {
	return H(`<a href="`+html.EscapeString(href)+`">`) + Esc(text) + "</a>"
}

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	var b strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(string(p))
	}
	return H(b.String())
}
