package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"refill-api-server/internal/models"
)

// Template names one notification layout.
type Template string

const (
	ItemRequestCreated   Template = "item_request_created"
	ItemRequestStatus    Template = "item_request_status"
	PurchaseCreated      Template = "purchase_created"
	PurchaseApproved     Template = "purchase_approved"
	PurchaseRejected     Template = "purchase_rejected"
	PurchaseReceipts     Template = "purchase_receipts"
	PurchaseCompleted    Template = "purchase_completed"
	PurchaseItemsUpdated Template = "purchase_items_updated"
)

// Data is what every template may reference.
type Data struct {
	RequestID     string
	UserID        string
	RequesterName string
	Status        models.RequestStatus
	Items         []models.LineItem
	Receipts      []models.FileReference
	Date          time.Time
}

func (d Data) Total() string { return models.SumTotal(d.Items).StringFixed(2) }

// Message is a rendered notification.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

type layout struct {
	subject string
	body    string
	text    string
}

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<style>
body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; }
.container { background-color: #fff; border-radius: 5px; padding: 20px; }
ul { list-style-type: none; padding: 0; }
li { background: #f0f0f0; margin: 5px 0; padding: 10px; border-radius: 3px; }
.footer { margin-top: 20px; font-size: 12px; color: #777; }
</style>
</head>
<body>
<div class="container">
{{template "body" .}}
<p class="footer">This is an automated message. Please do not reply.</p>
</div>
</body>
</html>`

const (
	htmlItems    = `<ul>{{range .Items}}<li>{{.Name}}: {{.Quantity}}</li>{{end}}</ul>`
	htmlReceipts = `<ul>{{range .Receipts}}<li><a href="{{.URL}}">{{.Name}}</a></li>{{end}}</ul>`
	textItems    = `{{range .Items}}{{.Name}}: {{.Quantity}}
{{end}}`
	dateFormat = `2006-01-02 15:04:05Z`
)

var layouts = map[Template]layout{
	ItemRequestCreated: {
		subject: "New Item Request Notification",
		body:    `<h1>New Item Request</h1><p>A new item request has been created with the following details:</p>` + htmlItems,
		text:    "A new item request has been created.\nItems:\n" + textItems,
	},
	ItemRequestStatus: {
		subject: "Your Request has been {{.Status}}",
		body:    `<p>Your request for the following items has been {{.Status}}:</p>` + htmlItems,
		text:    "Your request has been {{.Status}}.\n" + textItems,
	},
	PurchaseCreated: {
		subject: "New Item Request for Re-stock/Purchase",
		body: `<h1>New Item Request for Re-stock/Purchase</h1>
<p><strong>User ID:</strong> {{.UserID}}</p>
<p><strong>User Full Name:</strong> {{.RequesterName}}</p>
<p><strong>Request Status:</strong> {{.Status}}</p>
<p>Here are the details of the requested items:</p>` + htmlItems + `
<p><strong>Total:</strong> {{.Total}}</p>
<p><strong>Created Date:</strong> {{.Date.Format "` + dateFormat + `"}}</p>`,
		text: "New item request created by User Name: {{.RequesterName}}\nStatus: {{.Status}}\nItems:\n" + textItems +
			"Total: {{.Total}}\nCreated Date: {{.Date.Format \"" + dateFormat + "\"}}",
	},
	PurchaseApproved: {
		subject: "Your Purchase Request Status Update - Approved",
		body: `<h1>Purchase Request Approved</h1>
<p>Your purchase request (ID: {{.RequestID}}) has been <strong>Approved</strong>.</p>
<p>Updated Date: {{.Date.Format "` + dateFormat + `"}}</p>`,
		text: "Your purchase request (ID: {{.RequestID}}) has been Approved.\nUpdated Date: {{.Date.Format \"" + dateFormat + "\"}}",
	},
	PurchaseRejected: {
		subject: "Your Purchase Request Status Update - Rejected",
		body: `<h1>Purchase Request Rejected</h1>
<p>Your purchase request (ID: {{.RequestID}}) has been <strong>Rejected</strong>.</p>
<p>Updated Date: {{.Date.Format "` + dateFormat + `"}}</p>`,
		text: "Your purchase request (ID: {{.RequestID}}) has been Rejected.\nUpdated Date: {{.Date.Format \"" + dateFormat + "\"}}",
	},
	PurchaseReceipts: {
		subject: "Purchase Request Completed - Receipt Uploaded",
		body: `<h1>Receipts Uploaded</h1>
<p>Receipts were uploaded for the following purchase request:</p>
<p><strong>User ID:</strong> {{.UserID}}</p>
<p><strong>Items:</strong></p>` + htmlItems + `
<p><strong>Receipt Images:</strong></p>` + htmlReceipts + `
<p><strong>Date:</strong> {{.Date.Format "` + dateFormat + `"}}</p>`,
		text: "Receipts uploaded by User ID: {{.UserID}}\nItems:\n" + textItems +
			"Receipt Images:\n{{range .Receipts}}{{.Name}}: {{.URL}}\n{{end}}Date: {{.Date.Format \"" + dateFormat + "\"}}",
	},
	PurchaseCompleted: {
		subject: "Your Purchase Request Status Update - Completed",
		body: `<h1>Purchase Request Completed</h1>
<p>Your purchase request (ID: {{.RequestID}}) has been completed and the items were added to inventory:</p>` + htmlItems + `
<p><strong>Completed Date:</strong> {{.Date.Format "` + dateFormat + `"}}</p>`,
		text: "Your purchase request (ID: {{.RequestID}}) has been Completed.\nItems:\n" + textItems +
			"Completed Date: {{.Date.Format \"" + dateFormat + "\"}}",
	},
	PurchaseItemsUpdated: {
		subject: "Purchase Request Updated - Items and Receipt Uploaded",
		body: `<h1>Purchase Request Updated</h1>
<p><strong>User ID:</strong> {{.UserID}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
<p><strong>Updated Items:</strong></p>` + htmlItems + `
<p><strong>Last Updated Date:</strong> {{.Date.Format "` + dateFormat + `"}}</p>`,
		text: "Purchase request updated by User ID: {{.UserID}}\nStatus: {{.Status}}\nItems:\n" + textItems +
			"Last Updated Date: {{.Date.Format \"" + dateFormat + "\"}}",
	},
}

type compiled struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Templates renders notification messages. It is safe for concurrent use.
type Templates struct {
	byName map[Template]compiled
}

// NewTemplates parses every layout up front.
func NewTemplates() (*Templates, error) {
	t := &Templates{byName: make(map[Template]compiled, len(layouts))}
	for name, l := range layouts {
		subject, err := texttemplate.New(string(name) + "_subject").Parse(l.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		html, err := htmltemplate.New(string(name)).Parse(htmlShell)
		if err == nil {
			_, err = html.New("body").Parse(l.body)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s html: %w", name, err)
		}
		text, err := texttemplate.New(string(name) + "_text").Parse(l.text + "\nThis is an automated message. Please do not reply.")
		if err != nil {
			return nil, fmt.Errorf("parse %s text: %w", name, err)
		}
		t.byName[name] = compiled{subject: subject, html: html, text: text}
	}
	return t, nil
}

// MustTemplates is NewTemplates for package initialisation and tests.
func MustTemplates() *Templates {
	t, err := NewTemplates()
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Templates) Render(name Template, d Data) (Message, error) {
	c, ok := t.byName[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification template %q", name)
	}
	if d.Date.IsZero() {
		d.Date = time.Now().UTC()
	}

	var subject, html, text bytes.Buffer
	if err := c.subject.Execute(&subject, d); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := c.html.Execute(&html, d); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := c.text.Execute(&text, d); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return Message{Subject: subject.String(), HTML: html.String(), Text: text.String()}, nil
}
