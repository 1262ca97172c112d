package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const layout = `<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#333">
{{template "content" .}}
<p style="color:#888;font-size:12px">This is an automated message from CarePortal. Please do not reply.</p>
</body></html>`

var contents = map[string]string{
	"activation": `{{define "content"}}
<h2>Your account has been approved</h2>
<p>Hello {{.Name}},</p>
<p>An administrator approved your patient account. Activate it with the link below.</p>
<p><a href="{{.Link}}">Activate my account</a></p>
<p>The link expires on {{.ExpiresAt.Format "Jan 2, 2006 15:04 MST"}} and can be used once.</p>
{{end}}`,
	"rejection": `{{define "content"}}
<h2>Your registration was not approved</h2>
<p>Hello {{.Name}},</p>
<p>We could not approve your registration.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
{{end}}`,
	"password_reset": `{{define "content"}}
<h2>Reset your password</h2>
<p>Hello {{.Name}},</p>
<p>Use the link below to choose a new password.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires on {{.ExpiresAt.Format "Jan 2, 2006 15:04 MST"}}. If you did not ask for this, ignore this email.</p>
{{end}}`,
	"relative_invitation": `{{define "content"}}
<h2>You have been invited to CarePortal</h2>
<p>Hello {{.RelativeName}},</p>
<p>You were added as {{.Relationship}} for {{.PatientName}} with {{.AccessLevel}} access.</p>
<p><a href="{{.SetupLink}}">Set up my account</a></p>
<p>The invitation expires on {{.ExpiresAt.Format "Jan 2, 2006 15:04 MST"}}.</p>
{{end}}`,
}

var subjects = map[string]string{
	"activation":          "Activate your CarePortal account",
	"rejection":           "Your CarePortal registration",
	"password_reset":      "Reset your CarePortal password",
	"relative_invitation": "You're invited to CarePortal",
}

var templates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(contents))
	for name, body := range contents {
		t := template.Must(template.New("layout").Parse(layout))
		out[name] = template.Must(t.Parse(body))
	}
	return out
}()

// render returns the subject and HTML body for template name.
func render(name string, data interface{}) (string, string, error) {
	t, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return subjects[name], buf.String(), nil
}
