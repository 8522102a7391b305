package core

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed templates/email/*.txt templates/email/*.gohtml
var emailFS embed.FS

const emailTemplatesDir = "templates/email"

var (
	templates    tmplCache
	tmplInit     sync.Once
	tmplParseErr error
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]*tmplCacheEntry // {name: entry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent from BodyStr or the named template.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	tmplInit.Do(parseTemplates)
	if tmplParseErr != nil {
		return tmplParseErr
	}
	entry, ok := templates[m.TemplateName]
	if !ok {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	data := ContextData{FrontendBaseURL: strings.TrimSuffix(frontendBaseURL, "/"), Data: m.TemplateData}
	var buff bytes.Buffer
	if entry.text != nil && m.BodyStr == "" {
		if err := entry.text.ExecuteTemplate(&buff, "base", data); err != nil {
			return errors.Wrap(err, "rendering text template")
		}
		m.TextContent = buff.String()
		buff.Reset()
	}
	if entry.html != nil {
		if err := entry.html.ExecuteTemplate(&buff, "base", data); err != nil {
			return errors.Wrap(err, "rendering html template")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func parseTemplates() {
	templates = make(tmplCache)

	fps, err := fs.Glob(emailFS, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		tmplParseErr = errors.Wrap(err, "listing email templates")
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := templates[name]
		if !ok {
			entry = new(tmplCacheEntry)
			templates[name] = entry
		}
		base := path.Join(emailTemplatesDir, "_base"+ext)
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(emailFS, base, fp)
			if err != nil {
				tmplParseErr = errors.Wrapf(err, "parsing %s", fname)
				return
			}
			entry.text = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(emailFS, base, fp)
			if err != nil {
				tmplParseErr = errors.Wrapf(err, "parsing %s", fname)
				return
			}
			entry.html = tmpl.Option("missingkey=error")
		}
	}
}
