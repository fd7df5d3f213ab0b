// Package sample provides the Main -> Child -> Sub units used by the demo
// scenarios. Main asks Child for text, Child may ask Sub for more, and each
// responder publishes a TextResult back up the chain.
package sample

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"pkt.systems/resultnav"
	"pkt.systems/resultnav/internal/host"
)

// Unit kinds registered by Register.
const (
	KindMain  = "main"
	KindChild = "child"
	KindSub   = "sub"
)

// NotSpecified is the text a unit shows before it received anything.
const NotSpecified = "Not specified"

// TextResult is the result type passed along the chain.
type TextResult struct {
	Text string
}

// Register installs the sample factories on h. A string param seeds the
// unit's own text.
func Register(h *host.Host) {
	h.Register(KindMain, func(nav *resultnav.Navigator, _ any) (any, error) {
		return NewMain(nav), nil
	})
	h.Register(KindChild, func(nav *resultnav.Navigator, param any) (any, error) {
		text, _ := param.(string)
		return NewChild(nav, text), nil
	})
	h.Register(KindSub, func(nav *resultnav.Navigator, param any) (any, error) {
		text, _ := param.(string)
		return NewSub(nav, text), nil
	})
}

// Main is the root requester. It shows the text Child published.
type Main struct {
	resultnav.Unit

	mu        sync.Mutex
	finalText string
	received  int
}

// NewMain returns a bound Main.
func NewMain(nav *resultnav.Navigator) *Main {
	m := &Main{finalText: NotSpecified}
	m.Bind(nav, m)
	return m
}

// OnResult implements resultnav.ResultReceiver.
func (m *Main) OnResult(result TextResult) {
	m.mu.Lock()
	m.finalText = result.Text
	m.received++
	m.mu.Unlock()
}

// Request opens a Child for a result.
func (m *Main) Request(ctx context.Context, param any) error {
	return resultnav.NavigateForResult[TextResult](ctx, m.Navigator(), m, KindChild, param)
}

// Fields returns the unit's visible state.
func (m *Main) Fields() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]string{"FinalText": m.finalText, "Received": strconv.Itoa(m.received)}
}

// Child answers Main and may itself ask Sub for text.
type Child struct {
	resultnav.Unit

	mu       sync.Mutex
	seed     string
	myText   string
	subText  string
	received int
}

// NewChild returns a bound Child. seed becomes MyText during setup unless a
// restored bundle already set it.
func NewChild(nav *resultnav.Navigator, seed string) *Child {
	c := &Child{seed: seed, subText: NotSpecified}
	c.Bind(nav, c, resultnav.WithSetup(c.setup))
	return c
}

func (c *Child) setup(context.Context) error {
	c.mu.Lock()
	if c.myText == "" {
		c.myText = c.seed
	}
	c.mu.Unlock()
	return nil
}

// SetText sets MyText.
func (c *Child) SetText(text string) {
	c.mu.Lock()
	c.myText = text
	c.mu.Unlock()
}

// OnResult implements resultnav.ResultReceiver.
func (c *Child) OnResult(result TextResult) {
	c.mu.Lock()
	c.subText = result.Text
	c.received++
	c.mu.Unlock()
}

// Request opens a Sub for a result.
func (c *Child) Request(ctx context.Context, param any) error {
	return resultnav.NavigateForResult[TextResult](ctx, c.Navigator(), c, KindSub, param)
}

// Publish closes the Child with "MyText SubText".
func (c *Child) Publish(ctx context.Context) error {
	c.mu.Lock()
	text := strings.TrimSpace(c.myText + " " + c.subText)
	c.mu.Unlock()
	return resultnav.CloseWithResult(ctx, c.Navigator(), c, TextResult{Text: text})
}

// SaveState persists the texts together with the transaction ids.
func (c *Child) SaveState(b resultnav.Bundle) {
	c.Unit.SaveState(b)
	c.mu.Lock()
	defer c.mu.Unlock()
	b.Set("MyText", c.myText)
	b.Set("SubText", c.subText)
}

// RestoreState reloads what SaveState wrote.
func (c *Child) RestoreState(b resultnav.Bundle) {
	c.Unit.RestoreState(b)
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := b.Get("MyText"); ok {
		c.myText = v
	}
	if v, ok := b.Get("SubText"); ok {
		c.subText = v
	}
}

// Fields returns the unit's visible state.
func (c *Child) Fields() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]string{"MyText": c.myText, "SubText": c.subText, "Received": strconv.Itoa(c.received)}
}

// Sub is a pure responder.
type Sub struct {
	resultnav.Unit

	mu      sync.Mutex
	subText string
}

// NewSub returns a bound Sub showing text.
func NewSub(nav *resultnav.Navigator, text string) *Sub {
	s := &Sub{subText: text}
	s.Bind(nav, s)
	return s
}

// SetText sets SubText.
func (s *Sub) SetText(text string) {
	s.mu.Lock()
	s.subText = text
	s.mu.Unlock()
}

// Publish closes the Sub with its text.
func (s *Sub) Publish(ctx context.Context) error {
	s.mu.Lock()
	text := s.subText
	s.mu.Unlock()
	return resultnav.CloseWithResult(ctx, s.Navigator(), s, TextResult{Text: text})
}

// SaveState persists SubText together with the transaction ids.
func (s *Sub) SaveState(b resultnav.Bundle) {
	s.Unit.SaveState(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Set("SubText", s.subText)
}

// RestoreState reloads what SaveState wrote.
func (s *Sub) RestoreState(b resultnav.Bundle) {
	s.Unit.RestoreState(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := b.Get("SubText"); ok {
		s.subText = v
	}
}

// Fields returns the unit's visible state.
func (s *Sub) Fields() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]string{"SubText": s.subText}
}
