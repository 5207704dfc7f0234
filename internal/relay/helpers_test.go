package relay

import (
	"context"

	"github.com/mycrl/mirror/internal/transport/srt"
)

// hookFunc adapts a plain function into a Hook for tests that only care
// about being invoked, not about ShellHook/WebhookHook's transport.
type hookFunc func(event Event) error

func (f hookFunc) Execute(_ context.Context, event Event) error { return f(event) }
func (f hookFunc) Type() string                                { return "func" }
func (f hookFunc) ID() string                                  { return "test-hook" }

// fakeSocketHandle hands out a distinct *srt.Socket identity for registry
// tests that only care about set membership, never about sending real SRT
// traffic over it.
type fakeSocketHandle struct {
	sock srt.Socket
}

func (f *fakeSocketHandle) socket() *srt.Socket {
	return &f.sock
}
