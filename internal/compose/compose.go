// Package compose turns a recipient record into the message a sender account delivers.
package compose

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/Mutter0815/quotamailer/internal/campaign"
)

const HeaderListUnsubscribe = "List-Unsubscribe"

var wrapTmpl = template.Must(template.New("wrap").Parse(`
<html>
<body>
<p>Hello {{.Name}},</p>
<p>{{.Body}}</p>
<p>Best regards,<br>{{.Sender}}</p>
</body>
</html>
`))

var footerTmpl = template.Must(template.New("footer").Parse(
	`<p style="font-size:12px;color:#888888;">If you no longer wish to receive these emails, ` +
		`<a href="{{.}}">unsubscribe here</a>.</p>`))

// Compose builds the final message. It has no side effects.
func Compose(r campaign.Recipient, acc campaign.SenderAccount) (campaign.Message, error) {
	body := r.Body
	if !LooksLikeHTML(body) {
		var buf bytes.Buffer
		err := wrapTmpl.Execute(&buf, struct{ Name, Body, Sender string }{r.Name, body, acc.DisplayName})
		if err != nil {
			return campaign.Message{}, err
		}
		body = buf.String()
	}

	link := UnsubscribeLink(acc.Email, r.Email)
	var footer bytes.Buffer
	if err := footerTmpl.Execute(&footer, template.URL(link)); err != nil {
		return campaign.Message{}, err
	}

	return campaign.Message{
		FromIdentity:    acc.Email,
		FromDisplayName: acc.DisplayName,
		To:              r.Email,
		Subject:         r.Subject,
		HTMLBody:        insertFooter(body, footer.String()),
		Headers: map[string]string{
			HeaderListUnsubscribe: "<" + link + ">",
		},
	}, nil
}

// LooksLikeHTML reports whether body already starts with a markup tag.
func LooksLikeHTML(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "<")
}

// UnsubscribeLink is a mailto action back to the sender with the recipient in the subject.
func UnsubscribeLink(sender, recipient string) string {
	u := url.URL{Scheme: "mailto", Opaque: sender}
	u.RawQuery = "subject=" + url.PathEscape("Unsubscribe "+recipient)
	return u.String()
}

// insertFooter places footer right before the last closing body tag, or at the end.
func insertFooter(body, footer string) string {
	idx := lastIndexFold(body, "</body>")
	if idx < 0 {
		return body + footer
	}
	return body[:idx] + footer + "\n" + body[idx:]
}

func lastIndexFold(s, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
