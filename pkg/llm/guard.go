package llm

import "context"

// Guard runs a provider call under admission control (rate limit, breaker).
// *resilience.Guard satisfies it.
type Guard interface {
	Do(ctx context.Context, f func(context.Context) error) error
}

// GuardEmbedder routes every Embed call through g.
func GuardEmbedder(e Embedder, g Guard) Embedder {
	return EmbedFunc(func(ctx context.Context, text string) (out []float32, err error) {
		err = g.Do(ctx, func(ctx context.Context) error {
			out, err = e.Embed(ctx, text)
			return err
		})
		return out, err
	})
}

// GuardChatter routes every Chat call through g.
func GuardChatter(c Chatter, g Guard) Chatter {
	return ChatFunc(func(ctx context.Context, req ChatRequest) (out string, err error) {
		err = g.Do(ctx, func(ctx context.Context) error {
			out, err = c.Chat(ctx, req)
			return err
		})
		return out, err
	})
}

// GuardDescriber routes every Describe call through g.
func GuardDescriber(d Describer, g Guard) Describer {
	return DescribeFunc(func(ctx context.Context, img Image, instruction string) (out string, err error) {
		err = g.Do(ctx, func(ctx context.Context) error {
			out, err = d.Describe(ctx, img, instruction)
			return err
		})
		return out, err
	})
}
