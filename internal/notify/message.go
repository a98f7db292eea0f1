package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Message is one outbound registration email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

const bodyTemplate = `<!DOCTYPE html>
<html>
<head>
    <style>
        body {
            font-family: Arial, sans-serif;
            padding: 20px;
        }
    </style>
</head>
<body>
    <p>&lt;TOKEN&gt;<br>
    {{.TokenID}}</p>
    <p>Appointment: {{.Appointment}}</p>
</body>
</html>`

var bodyTmpl = template.Must(template.New("registration").Parse(bodyTemplate))

// RenderRegistration builds the registration message embedding the token and
// the human-readable appointment time.
func RenderRegistration(to, tokenID string, appointmentAt time.Time) (Message, error) {
	appointment := appointmentAt.Format("2006-01-02 15:04 MST")

	var buf bytes.Buffer
	err := bodyTmpl.Execute(&buf, struct {
		TokenID     string
		Appointment string
	}{TokenID: tokenID, Appointment: appointment})
	if err != nil {
		return Message{}, fmt.Errorf("render registration mail: %w", err)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Registration Token - Appointment on %s", appointment),
		HTML:    buf.String(),
	}, nil
}

// tokenPrefix shortens a token for log lines so the bearer secret never lands
// in logs whole.
func tokenPrefix(tokenID string) string {
	if len(tokenID) <= 8 {
		return tokenID
	}
	return tokenID[:8] + "..."
}
