package email

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/pkg/errors"
)

var genericTemplate = template.Must(template.New("generic").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<h1>{{.Title}}</h1>
	{{range .Paragraphs}}<p>{{.}}</p>
	{{end}}
	<hr>
	<p style="font-size: 12px; color: #888;">{{.Site}}</p>
</body>
</html>`))

var newsletterTemplate = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<p style="font-size: 12px; color: #888;">{{.Site}}</p>
	{{if .CoverURL}}<img src="{{.CoverURL}}" alt="" style="max-width: 100%;">{{end}}
	<h1><a href="{{.ArticleURL}}">{{.Title}}</a></h1>
	{{if .Author}}<p>by {{.Author}}</p>{{end}}
	<div>{{.Excerpt}}</div>
	<p><a href="{{.ArticleURL}}">Read the full article</a></p>
	<hr>
	<p style="font-size: 12px; color: #888;">
		You are receiving this e-mail because you subscribed to the {{.Site}} newsletter.
		<a href="{{.UnsubscribeURL}}">Unsubscribe</a>
	</p>
</body>
</html>`))

// NewsletterData fills the article announcement sent to subscribers.
type NewsletterData struct {
	Site           string
	Title          string
	Author         string
	ArticleURL     string
	CoverURL       string
	Excerpt        template.HTML
	UnsubscribeURL string
}

// RenderGeneric lays out a plain notification; blank lines split paragraphs.
func RenderGeneric(site, title, text string) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var buf bytes.Buffer
	err := genericTemplate.Execute(&buf, struct {
		Site       string
		Title      string
		Paragraphs []string
	}{site, title, paragraphs})
	if err != nil {
		return "", errors.Wrap(err, "render generic mail")
	}
	return buf.String(), nil
}

func RenderNewsletter(data NewsletterData) (string, error) {
	var buf bytes.Buffer
	if err := newsletterTemplate.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render newsletter mail")
	}
	return buf.String(), nil
}
