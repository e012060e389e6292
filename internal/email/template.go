package email

import (
	"bytes"
	"html/template"

	"fieldservice_backend/internal/notification"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #1a1a1a; margin: 0; padding: 24px;">
    <h2 style="margin-top: 0;">{{.Title}}</h2>
    {{if .Name}}<p>Dear {{.Name}},</p>{{end}}
    <p>{{.Body}}</p>
    <p style="color: #6b7280; font-size: 12px;">This is an automated message, replies are not read.</p>
  </body>
</html>`))

type bodyData struct {
	Title string
	Name  string
	Body  string
}

func renderBody(r notification.Recipient, msg notification.Message) string {
	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, bodyData{Title: msg.Title, Name: r.Name, Body: msg.Body})
	if err != nil {
		return msg.Body
	}
	return buf.String()
}
