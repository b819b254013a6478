package llm

import (
	"context"
	"errors"
	"testing"
)

// scriptedProvider answers with a fixed response or error.
type scriptedProvider struct {
	name  string
	resp  *Response
	err   error
	calls int
}

func (p *scriptedProvider) SendMessage(context.Context, *Request) (*Response, error) {
	p.calls++
	return p.resp, p.err
}

func (p *scriptedProvider) Name() string { return p.name }

func TestFallback_PrimaryAnswersDirectly(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", resp: &Response{Content: "hi"}}
	backup := &scriptedProvider{name: "groq", resp: &Response{Content: "nope"}}
	f := NewFallbackProvider([]Provider{primary, backup}, discardLogger())

	resp, err := f.SendMessage(context.Background(), &Request{})
	if err != nil || resp.Content != "hi" {
		t.Fatalf("got (%v, %v), want primary answer", resp, err)
	}
	if backup.calls != 0 {
		t.Error("backup must not be called when the primary answers")
	}
}

func TestFallback_NextBackendOnFailure(t *testing.T) {
	primary := &scriptedProvider{name: "anthropic", err: errors.New("overloaded")}
	backup := &scriptedProvider{name: "groq", resp: &Response{Content: "recovered"}}
	f := NewFallbackProvider([]Provider{primary, backup}, discardLogger())

	resp, err := f.SendMessage(context.Background(), &Request{})
	if err != nil || resp.Content != "recovered" {
		t.Fatalf("got (%v, %v), want backup answer", resp, err)
	}
}

func TestFallback_AllBackendsFail(t *testing.T) {
	wantErr := errors.New("down")
	f := NewFallbackProvider([]Provider{
		&scriptedProvider{name: "anthropic", err: errors.New("overloaded")},
		&scriptedProvider{name: "groq", err: wantErr},
	}, discardLogger())

	_, err := f.SendMessage(context.Background(), &Request{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error %v should wrap the last backend failure", err)
	}
}
