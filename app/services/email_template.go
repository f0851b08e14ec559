package services

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// BrandedEmail is the data rendered into the studio email layout
type BrandedEmail struct {
	StudioName     string
	Title          string
	Body           string
	BodyHTML       template.HTML
	CTALabel       string
	CTAURL         string
	UnsubscribeURL string
}

const brandedLayout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;background:#f6f3ef;font-family:Helvetica,Arial,sans-serif;color:#2f2a26;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:32px 16px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:12px;">
<tr><td style="padding:24px 32px;border-bottom:1px solid #eee3d8;font-size:20px;font-weight:bold;">{{.StudioName}}</td></tr>
<tr><td style="padding:32px;">
{{if .Title}}<h1 style="margin:0 0 16px;font-size:22px;">{{.Title}}</h1>{{end}}
{{if .BodyHTML}}{{.BodyHTML}}{{else}}{{range .Paragraphs}}<p style="margin:0 0 12px;line-height:1.6;">{{.}}</p>{{end}}{{end}}
{{if .CTAURL}}<p style="margin:24px 0 0;"><a href="{{.CTAURL}}" style="background:#8b6f5a;color:#ffffff;padding:12px 20px;border-radius:6px;text-decoration:none;">{{.CTALabel}}</a></p>{{end}}
</td></tr>
<tr><td style="padding:16px 32px;font-size:12px;color:#8a8079;border-top:1px solid #eee3d8;">
{{.StudioName}}{{if .UnsubscribeURL}} · <a href="{{.UnsubscribeURL}}" style="color:#8a8079;">Unsubscribe</a>{{end}}
</td></tr>
</table>
</td></tr></table>
</body>
</html>`

var brandedTemplate = template.Must(template.New("branded").Parse(brandedLayout))

// RenderBrandedHTML wraps a plain-text body, or pre-rendered BodyHTML, in the studio layout
func RenderBrandedHTML(e BrandedEmail) (string, error) {
	if e.CTAURL != "" && e.CTALabel == "" {
		e.CTALabel = "Open"
	}

	data := struct {
		BrandedEmail
		Paragraphs []string
	}{
		BrandedEmail: e,
		Paragraphs:   splitParagraphs(e.Body),
	}

	var buf bytes.Buffer
	if err := brandedTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render branded email: %w", err)
	}
	return buf.String(), nil
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
