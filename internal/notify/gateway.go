// Package notify delivers workflow notifications. Delivery is best effort:
// a Gateway only reports whether it accepted the message.
package notify

import (
	"context"
)

// Gateway sends one message to a set of recipients.
type Gateway interface {
	Notify(ctx context.Context, recipients []string, subject, html, text string) bool
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, recipients []string, subject, html, text string) bool

func (f GatewayFunc) Notify(ctx context.Context, recipients []string, subject, html, text string) bool {
	return f(ctx, recipients, subject, html, text)
}

// Nop accepts and drops everything.
var Nop Gateway = GatewayFunc(func(context.Context, []string, string, string, string) bool { return true })

// Fanout sends to every gateway and succeeds if any of them did.
type Fanout []Gateway

func (f Fanout) Notify(ctx context.Context, recipients []string, subject, html, text string) bool {
	if len(recipients) == 0 {
		return true
	}
	ok := false
	for _, g := range f {
		if g == nil {
			continue
		}
		if g.Notify(ctx, recipients, subject, html, text) {
			ok = true
		}
	}
	return ok
}
