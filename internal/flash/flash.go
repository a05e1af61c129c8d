package flash

import (
	"sync"
	"time"
)

// DefaultTTL is how long a message stays up before it auto-clears.
const DefaultTTL = 5 * time.Second

// Kind classifies a flash message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Message is the content of the banner.
type Message struct {
	Token uint64
	Kind  Kind
	Text  string
}

// Banner is a single-slot message area. Every Show supersedes the current
// message and schedules its own clear; a clear is only honored while its
// token is still the current one, so an older timer can never take down a
// newer message.
type Banner struct {
	mu      sync.Mutex
	ttl     time.Duration
	after   func(time.Duration, func())
	current Message
	visible bool
	seq     uint64
}

// Option configures a Banner.
type Option func(*Banner)

// WithAfterFunc replaces time.AfterFunc for scheduling clears.
func WithAfterFunc(after func(time.Duration, func())) Option {
	return func(b *Banner) { b.after = after }
}

// New creates a Banner whose messages clear after ttl. A ttl <= 0 keeps
// messages until they are superseded or cleared explicitly.
func New(ttl time.Duration, opts ...Option) *Banner {
	b := &Banner{
		ttl: ttl,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Show replaces the current message and returns its token.
func (b *Banner) Show(kind Kind, text string) uint64 {
	b.mu.Lock()
	b.seq++
	token := b.seq
	b.current = Message{Token: token, Kind: kind, Text: text}
	b.visible = true
	b.mu.Unlock()

	if b.ttl > 0 {
		b.after(b.ttl, func() { b.Clear(token) })
	}
	return token
}

// Success shows a success message.
func (b *Banner) Success(text string) uint64 { return b.Show(KindSuccess, text) }

// Warn shows a warning message.
func (b *Banner) Warn(text string) uint64 { return b.Show(KindWarning, text) }

// Error shows an error message.
func (b *Banner) Error(text string) uint64 { return b.Show(KindError, text) }

// Clear hides the message identified by token. It reports false, and does
// nothing, when a newer message has replaced it.
func (b *Banner) Clear(token uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.visible || b.current.Token != token {
		return false
	}
	b.visible = false
	b.current = Message{}
	return true
}

// Current returns the visible message, if any.
func (b *Banner) Current() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.visible
}
