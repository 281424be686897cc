package report

import (
	"context"
	"fmt"
)

// OutboundText is one message handed to a transport.
type OutboundText struct {
	ChatID    int64
	Text      string
	ParseMode string
	// ReplyTo is the message id this one answers; 0 sends a standalone message.
	ReplyTo int
}

// Sender is a chat transport.
type Sender interface {
	SendText(ctx context.Context, msg OutboundText) error
}

// Delivery addresses a multi-part report.
type Delivery struct {
	ChatID    int64
	ReplyTo   int
	ParseMode string
}

// Deliver sends parts in order. Only the first part is linked to d.ReplyTo;
// later parts are follow-ups. Every part uses the same parse mode. It stops at
// the first failure and returns the number of parts sent.
func Deliver(ctx context.Context, sender Sender, d Delivery, parts []string) (int, error) {
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		msg := OutboundText{
			ChatID:    d.ChatID,
			Text:      part,
			ParseMode: d.ParseMode,
		}
		if i == 0 {
			msg.ReplyTo = d.ReplyTo
		}

		if err := sender.SendText(ctx, msg); err != nil {
			return i, fmt.Errorf("failed to send part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return len(parts), nil
}
