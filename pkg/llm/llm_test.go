package llm

import (
	"context"
	"errors"
	"testing"
)

func TestDataURL(t *testing.T) {
	got := Image{MIME: "image/png", Data: []byte("hi")}.DataURL()
	if got != "data:image/png;base64,aGk=" {
		t.Fatalf("got %q", got)
	}
}

func TestFuncAdapters(t *testing.T) {
	var e Embedder = EmbedFunc(func(context.Context, string) ([]float32, error) { return []float32{1}, nil })
	var c Chatter = ChatFunc(func(_ context.Context, r ChatRequest) (string, error) { return r.Messages[0].Content, nil })
	var d Describer = DescribeFunc(func(_ context.Context, img Image, _ string) (string, error) { return img.MIME, nil })

	if v, _ := e.Embed(context.Background(), "x"); len(v) != 1 {
		t.Fatal("embed adapter")
	}
	if s, _ := c.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "echo"}}}); s != "echo" {
		t.Fatal("chat adapter")
	}
	if s, _ := d.Describe(context.Background(), Image{MIME: "image/gif"}, ""); s != "image/gif" {
		t.Fatal("describe adapter")
	}
}

type countingGuard struct{ calls int }

func (g *countingGuard) Do(ctx context.Context, f func(context.Context) error) error {
	g.calls++
	return f(ctx)
}

type rejectingGuard struct{ err error }

func (g rejectingGuard) Do(context.Context, func(context.Context) error) error { return g.err }

func TestGuardWrappers(t *testing.T) {
	g := &countingGuard{}
	ctx := context.Background()
	e := GuardEmbedder(EmbedFunc(func(context.Context, string) ([]float32, error) { return []float32{1, 2}, nil }), g)
	c := GuardChatter(ChatFunc(func(context.Context, ChatRequest) (string, error) { return "ok", nil }), g)
	d := GuardDescriber(DescribeFunc(func(context.Context, Image, string) (string, error) { return "img", nil }), g)

	if v, err := e.Embed(ctx, "x"); err != nil || len(v) != 2 {
		t.Fatalf("embed: %v, %v", v, err)
	}
	if s, err := c.Chat(ctx, ChatRequest{}); err != nil || s != "ok" {
		t.Fatalf("chat: %q, %v", s, err)
	}
	if s, err := d.Describe(ctx, Image{}, ""); err != nil || s != "img" {
		t.Fatalf("describe: %q, %v", s, err)
	}
	if g.calls != 3 {
		t.Fatalf("guard saw %d calls", g.calls)
	}
}

func TestGuardRejection(t *testing.T) {
	called := false
	rejected := errors.New("circuit open")
	e := GuardEmbedder(EmbedFunc(func(context.Context, string) ([]float32, error) {
		called = true
		return nil, nil
	}), rejectingGuard{rejected})
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, rejected) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}
