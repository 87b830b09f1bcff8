package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ping struct{ n int }
type pong struct{}

func TestDispatchByType(t *testing.T) {
	b := New()
	var got []int
	SubscribeTo(b, func(_ context.Context, p ping) { got = append(got, p.n) })
	SubscribeTo(b, func(_ context.Context, p ping) { got = append(got, p.n*10) })
	SubscribeTo(b, func(context.Context, pong) { t.Fatal("pong handler called for ping") })

	b.emit(context.Background(), ping{n: 1})
	assert.Equal(t, []int{1, 10}, got)
}

func TestUnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	b := New()
	var a, c int
	h := func(context.Context, ping) { a++ }
	unsubA := SubscribeTo(b, h)
	SubscribeTo(b, h)
	SubscribeTo(b, func(context.Context, ping) { c++ })

	unsubA()
	unsubA()
	b.emit(context.Background(), ping{})

	assert.Equal(t, 1, a, "the second registration of the same func stays")
	assert.Equal(t, 1, c)
}

func TestGlobalBus(t *testing.T) {
	Use(nil)
	unsub := Subscribe(func(context.Context, ping) { t.Fatal("no bus installed") })
	unsub()
	Publish(context.Background(), ping{})

	b := New()
	Use(b)
	t.Cleanup(func() { Use(nil) })

	var seen bool
	defer Subscribe(func(context.Context, ping) { seen = true })()
	Publish(context.Background(), ping{})
	assert.True(t, seen)
}
