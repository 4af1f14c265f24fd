package graph

import (
	"regexp"
	"strings"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes markup tags from HTML body content, leaving the text.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}
	return htmlTagPattern.ReplaceAllString(html, "")
}

// FormatAddress renders a recipient as "Name (address)", or just the address
// when no display name is present. A missing sender renders as "Unknown".
func FormatAddress(r *Recipient) string {
	if r == nil {
		return "Unknown"
	}
	name := r.EmailAddress.Name
	address := r.EmailAddress.Address
	if name != "" {
		return name + " (" + address + ")"
	}
	return address
}

// FormatRecipients renders a recipient list as a comma-separated string, or
// "None" when empty.
func FormatRecipients(recipients []Recipient) string {
	if len(recipients) == 0 {
		return "None"
	}
	parts := make([]string, len(recipients))
	for i := range recipients {
		parts[i] = FormatAddress(&recipients[i])
	}
	return strings.Join(parts, ", ")
}

// FormatDate renders a Graph receivedDateTime ("2026-01-02T15:04:05Z") as
// "2026-01-02 15:04:05".
func FormatDate(received string) string {
	if len(received) > 19 {
		received = received[:19]
	}
	return strings.Replace(received, "T", " ", 1)
}

// Body extracts readable body text from a message, stripping markup from
// HTML bodies and falling back to the preview when no body was fetched.
func Body(m *Message) string {
	if m.Body != nil {
		if strings.EqualFold(m.Body.ContentType, "html") {
			return StripHTML(m.Body.Content)
		}
		if m.Body.Content != "" {
			return m.Body.Content
		}
	}
	return m.BodyPreview
}
