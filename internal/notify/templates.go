package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/k3a/html2text"
)

// DefaultProductName appears in subjects and message footers.
const DefaultProductName = "Digital Legacy Vault"

// WarningData feeds the warning and final-warning messages sent to the owner.
type WarningData struct {
	OwnerEmail    string
	NomineeName   string
	NomineeEmail  string
	DaysRemaining int
	LastCheckIn   time.Time
	CheckInURL    string
}

// TriggeredData feeds the message sent to the nominee when a switch triggers.
type TriggeredData struct {
	NomineeName     string
	OwnerEmail      string
	PersonalMessage string
	AccessURL       string
	ExpiresAt       time.Time
}

// TestData feeds the one-off message used to verify a nominee address.
type TestData struct {
	NomineeName  string
	NomineeEmail string
	OwnerEmail   string
}

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Product}}</title></head>
<body>
<h1>{{.Heading}}</h1>
{{template "body" .}}
<p><small>{{.Product}} - Securing what matters most</small></p>
</body>
</html>{{end}}`

const warningHTML = `{{define "body"}}
<p>Your Dead Man's Switch will trigger in <strong>{{.Data.DaysRemaining}} days</strong> if you don't check in.</p>
<p>Last check-in: {{.Data.LastCheckIn.Format "January 2, 2006"}}</p>
<p>When triggered, <strong>{{nominee .Data.NomineeName .Data.NomineeEmail}}</strong> will receive access to your {{.Product}}.</p>
<p><a href="{{.Data.CheckInURL}}">I'm Still Here - Check In Now</a></p>
{{end}}`

const finalWarningHTML = `{{define "body"}}
<p><strong>Only {{.Data.DaysRemaining}} days remaining!</strong></p>
<p>This is your <strong>final reminder</strong>. Your Dead Man's Switch will trigger soon and grant <strong>{{nominee .Data.NomineeName .Data.NomineeEmail}}</strong> access to your vault.</p>
<p><a href="{{.Data.CheckInURL}}">Check In Now - Reset Timer</a></p>
{{end}}`

const triggeredHTML = `{{define "body"}}
<p>Dear {{fallback .Data.NomineeName "Trusted Person"}},</p>
<p>You have been designated as a trusted nominee for a {{.Product}} belonging to <strong>{{fallback .Data.OwnerEmail "the vault owner"}}</strong>.</p>
<p>Due to extended inactivity, the vault's Dead Man's Switch has been triggered, and you have been granted access to their important information.</p>
{{if .Data.PersonalMessage}}<blockquote><p>Personal Message:</p><p>"{{.Data.PersonalMessage}}"</p></blockquote>{{end}}
<p><a href="{{.Data.AccessURL}}">Access the Vault</a></p>
<p>This link will expire on {{.Data.ExpiresAt.Format "Monday, January 2, 2006"}}.</p>
<p>Security Note: The vault contents are encrypted. You may need the master password to decrypt the information.</p>
{{end}}`

const testHTML = `{{define "body"}}
<p>Hello {{fallback .Data.NomineeName "there"}},</p>
<p>This is a test email from {{.Product}}. {{fallback .Data.OwnerEmail "The vault owner"}} has designated you as their trusted nominee.</p>
<p>If their Dead Man's Switch is ever triggered, you will receive an email with secure access to their vault.</p>
{{end}}`

var funcs = template.FuncMap{
	"fallback": func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	},
	"nominee": func(name, email string) string {
		if strings.TrimSpace(name) == "" {
			return email
		}
		return name
	},
}

// Renderer turns notification data into Messages.
type Renderer struct {
	product      string
	warning      *template.Template
	finalWarning *template.Template
	triggered    *template.Template
	test         *template.Template
}

// NewRenderer parses the built-in templates. An empty product name uses
// DefaultProductName.
func NewRenderer(product string) (*Renderer, error) {
	if product == "" {
		product = DefaultProductName
	}
	r := &Renderer{product: product}

	var err error
	if r.warning, err = parse("warning", warningHTML); err != nil {
		return nil, err
	}
	if r.finalWarning, err = parse("final_warning", finalWarningHTML); err != nil {
		return nil, err
	}
	if r.triggered, err = parse("triggered", triggeredHTML); err != nil {
		return nil, err
	}
	if r.test, err = parse("test", testHTML); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRenderer is NewRenderer for the built-in templates, which always parse.
func MustRenderer() *Renderer {
	r, err := NewRenderer("")
	if err != nil {
		panic(err)
	}
	return r
}

func parse(name, body string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).Parse(layoutHTML)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if _, err := t.Parse(body); err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return t, nil
}

// Warning renders the first reminder sent at 75% of the inactivity period.
func (r *Renderer) Warning(d WarningData) (Message, error) {
	return r.render(r.warning, r.product+" - Check-in Reminder", "Check-in Reminder", d)
}

// FinalWarning renders the reminder sent at 90% of the inactivity period.
func (r *Renderer) FinalWarning(d WarningData) (Message, error) {
	return r.render(r.finalWarning, "URGENT: "+r.product+" - Final Warning", "FINAL WARNING", d)
}

// Triggered renders the nominee's access message.
func (r *Renderer) Triggered(d TriggeredData) (Message, error) {
	return r.render(r.triggered, r.product+" - You Have Been Granted Access", r.product, d)
}

// Test renders the nominee verification message.
func (r *Renderer) Test(d TestData) (Message, error) {
	return r.render(r.test, r.product+" - Test Email Successful", "Test Email Successful", d)
}

type view struct {
	Product string
	Heading string
	Data    any
}

func (r *Renderer) render(t *template.Template, subject, heading string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", view{Product: r.product, Heading: heading, Data: data}); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", t.Name(), err)
	}

	html := buf.String()
	return Message{
		Subject: subject,
		HTML:    html,
		Text:    strings.TrimSpace(html2text.HTML2Text(html)),
	}, nil
}
