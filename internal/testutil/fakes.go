package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/mailer"
)

// Mailer records every message instead of sending it.
type Mailer struct {
	mu   sync.Mutex
	Sent []mailer.Message
}

func (m *Mailer) Send(_ context.Context, msg mailer.Message) error {
	if _, err := mailer.Render(msg.Template, msg.Data); err != nil {
		return err
	}
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()
	return nil
}

// Last returns the most recent message sent to addr.
func (m *Mailer) Last(addr string) (mailer.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].To == addr {
			return m.Sent[i], true
		}
	}
	return mailer.Message{}, false
}

// ImageStore keeps uploaded objects in memory.
type ImageStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewImageStore() *ImageStore {
	return &ImageStore{Objects: map[string][]byte{}}
}

func (s *ImageStore) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	s.Objects[key] = data
	s.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func (s *ImageStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.Objects, key)
	s.mu.Unlock()
	return nil
}

// Pusher records realtime pushes per user.
type Pusher struct {
	mu     sync.Mutex
	Pushed map[uuid.UUID][]any
}

func NewPusher() *Pusher {
	return &Pusher{Pushed: map[uuid.UUID][]any{}}
}

func (p *Pusher) SendToUser(userID uuid.UUID, data any) {
	p.mu.Lock()
	p.Pushed[userID] = append(p.Pushed[userID], data)
	p.mu.Unlock()
}

func (p *Pusher) Count(userID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Pushed[userID])
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Phone returns a valid, unique-per-n Ethiopian phone number.
func Phone(n int) string {
	return fmt.Sprintf("+2519%08d", n)
}
