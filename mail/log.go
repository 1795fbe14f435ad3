// Package mail holds development [auth.Mailer] implementations.
package mail

import (
	"context"
	"log/slog"
	"sort"

	"github.com/zengzjie/food-delivery-sass/auth"
)

// LogMailer writes every message to a structured logger instead of sending
// it. Template data is logged in full, so activation codes and reset links
// are readable in development.
type LogMailer struct {
	logger *slog.Logger
}

var _ auth.Mailer = (*LogMailer)(nil)

// NewLogMailer logs through l, or slog.Default when l is nil.
func NewLogMailer(l *slog.Logger) *LogMailer {
	if l == nil {
		l = slog.Default()
	}
	return &LogMailer{logger: l}
}

// Send implements auth.Mailer.
func (m *LogMailer) Send(ctx context.Context, msg auth.Message) error {
	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([]any, 0, len(keys))
	for _, k := range keys {
		data = append(data, slog.String(k, msg.Data[k]))
	}
	m.logger.InfoContext(ctx, "mail",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("template", msg.Template),
		slog.Group("data", data...),
	)
	return nil
}
