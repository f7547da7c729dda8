package emr

import (
	"fmt"
	"time"
)

// fakeElement is a scriptable Element for controller tests.
type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string][]*fakeElement

	onClick  func() error
	typed    string
	filled   string
	selected string
	clicked  int
}

func newFakeElement(text string) *fakeElement {
	return &fakeElement{
		text:     text,
		attrs:    make(map[string]string),
		children: make(map[string][]*fakeElement),
	}
}

func (e *fakeElement) withAttr(name, value string) *fakeElement {
	e.attrs[name] = value
	return e
}

func (e *fakeElement) withChild(locator string, child *fakeElement) *fakeElement {
	e.children[locator] = append(e.children[locator], child)
	return e
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(name string) (string, error) {
	return e.attrs[name], nil
}

func (e *fakeElement) Click() error {
	e.clicked++
	if e.onClick != nil {
		return e.onClick()
	}
	return nil
}

func (e *fakeElement) Type(text string) error {
	e.typed += text
	return nil
}

func (e *fakeElement) Fill(value string) error {
	e.filled = value
	return nil
}

func (e *fakeElement) SelectOption(value string) error {
	e.selected = value
	return nil
}

func (e *fakeElement) Find(locator string) (Element, error) {
	els := e.children[locator]
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	return els[0], nil
}

func (e *fakeElement) FindAll(locator string) ([]Element, error) {
	els := e.children[locator]
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

// fakeContext is one scripted remote view.
type fakeContext struct {
	elements map[string][]*fakeElement
	dialogs  []string
	script   func(script string) (interface{}, error)
	closed   bool
}

func newFakeContext() *fakeContext {
	return &fakeContext{elements: make(map[string][]*fakeElement)}
}

func (c *fakeContext) add(locator string, els ...*fakeElement) *fakeContext {
	c.elements[locator] = append(c.elements[locator], els...)
	return c
}

// fakeSurface is a scriptable Surface. Contexts are added up front or
// created by element click callbacks via addContext.
type fakeSurface struct {
	contexts map[Handle]*fakeContext
	order    []Handle
	active   Handle
	nextID   int
	closed   bool
	cookies  []Cookie
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{contexts: make(map[Handle]*fakeContext)}
}

func (s *fakeSurface) addContext(ctx *fakeContext) Handle {
	s.nextID++
	h := Handle(fmt.Sprintf("ctx-%d", s.nextID))
	s.contexts[h] = ctx
	s.order = append(s.order, h)
	if s.active == "" {
		s.active = h
	}
	return h
}

func (s *fakeSurface) context(h Handle) (*fakeContext, error) {
	ctx, ok := s.contexts[h]
	if !ok || ctx.closed {
		return nil, fmt.Errorf("%w: handle %s", ErrContextLost, h)
	}
	return ctx, nil
}

// closeExternally simulates the operator closing a window out-of-band.
func (s *fakeSurface) closeExternally(h Handle) {
	if ctx, ok := s.contexts[h]; ok {
		ctx.closed = true
	}
	s.removeFromOrder(h)
}

func (s *fakeSurface) removeFromOrder(h Handle) {
	for i, other := range s.order {
		if other == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == h && len(s.order) > 0 {
		s.active = s.order[len(s.order)-1]
	}
}

func (s *fakeSurface) Navigate(h Handle, url string) error {
	_, err := s.context(h)
	return err
}

func (s *fakeSurface) Current() (Handle, error) {
	if s.active == "" {
		return "", fmt.Errorf("%w: no active context", ErrContextLost)
	}
	return s.active, nil
}

func (s *fakeSurface) Contexts() ([]Handle, error) {
	out := make([]Handle, len(s.order))
	copy(out, s.order)
	return out, nil
}

func (s *fakeSurface) SwitchTo(h Handle) error {
	if _, err := s.context(h); err != nil {
		return err
	}
	s.active = h
	return nil
}

func (s *fakeSurface) CloseContext(h Handle) error {
	ctx, err := s.context(h)
	if err != nil {
		return err
	}
	ctx.closed = true
	s.removeFromOrder(h)
	return nil
}

func (s *fakeSurface) Find(h Handle, locator string) (Element, error) {
	ctx, err := s.context(h)
	if err != nil {
		return nil, err
	}
	els := ctx.elements[locator]
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	return els[0], nil
}

func (s *fakeSurface) FindAll(h Handle, locator string) ([]Element, error) {
	ctx, err := s.context(h)
	if err != nil {
		return nil, err
	}
	els := ctx.elements[locator]
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (s *fakeSurface) WaitVisible(h Handle, locator string, timeout time.Duration) (Element, error) {
	return s.Find(h, locator)
}

func (s *fakeSurface) AcceptDialog(h Handle, timeout time.Duration) (string, error) {
	ctx, err := s.context(h)
	if err != nil {
		return "", err
	}
	if len(ctx.dialogs) == 0 {
		return "", fmt.Errorf("%w: no dialog", ErrNotFound)
	}
	msg := ctx.dialogs[0]
	ctx.dialogs = ctx.dialogs[1:]
	return msg, nil
}

func (s *fakeSurface) RunScript(h Handle, script string) (interface{}, error) {
	ctx, err := s.context(h)
	if err != nil {
		return nil, err
	}
	if ctx.script != nil {
		return ctx.script(script)
	}
	return nil, nil
}

func (s *fakeSurface) Cookies() ([]Cookie, error) {
	return s.cookies, nil
}

func (s *fakeSurface) Close() error {
	s.closed = true
	for _, ctx := range s.contexts {
		ctx.closed = true
	}
	s.order = nil
	s.active = ""
	return nil
}
