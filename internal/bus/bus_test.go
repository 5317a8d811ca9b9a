package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/models"
)

var ctx = context.Background()

func alert(city string) models.AlertEvent {
	return models.AlertEvent{CityName: city, RegionCode: "SP"}
}

func recv(t *testing.T, s *Subscription) models.AlertEvent {
	t.Helper()
	select {
	case ev, ok := <-s.C():
		require.True(t, ok, "subscription channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.AlertEvent{}
}

func TestBus_DeliversInOrderToAllSubscribers(t *testing.T) {
	b := New(8)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	for _, city := range []string{"Campinas", "Santos", "Sorocaba"} {
		assert.Equal(t, 2, b.Publish(ctx, alert(city)))
	}

	for _, s := range []*Subscription{s1, s2} {
		assert.Equal(t, "Campinas", recv(t, s).CityName)
		assert.Equal(t, "Santos", recv(t, s).CityName)
		assert.Equal(t, "Sorocaba", recv(t, s).CityName)
	}
}

func TestBus_NoReplay(t *testing.T) {
	b := New(8)
	defer b.Close()

	early := b.Subscribe()
	b.Publish(ctx, alert("Manaus"))

	late := b.Subscribe()
	b.Publish(ctx, alert("Belém"))

	assert.Equal(t, "Manaus", recv(t, early).CityName)
	assert.Equal(t, "Belém", recv(t, early).CityName)
	assert.Equal(t, "Belém", recv(t, late).CityName)

	select {
	case ev := <-late.C():
		t.Fatalf("late subscriber got replayed event %+v", ev)
	default:
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := New(1)
	defer b.Close()
	assert.Equal(t, 0, b.Publish(ctx, alert("Natal")))
}

func TestBus_ClosingSubscriptionUnblocksPublish(t *testing.T) {
	b := New(1)
	defer b.Close()

	s := b.Subscribe()
	b.Publish(ctx, alert("one")) // fills the buffer

	done := make(chan int)
	go func() { done <- b.Publish(ctx, alert("two")) }()

	select {
	case <-done:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(50 * time.Millisecond):
	}

	s.Close()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after subscription closed")
	}
	assert.Equal(t, 0, b.Len())
	s.Close()
}

func TestBus_CloseClosesChannels(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Close()

	_, ok := <-s.C()
	assert.False(t, ok)

	after := b.Subscribe()
	_, ok = <-after.C()
	assert.False(t, ok)
	after.Close()
	s.Close()
}

func TestBus_PublishStopsWhenContextEnds(t *testing.T) {
	b := New(1)
	defer b.Close()

	b.Subscribe()
	b.Publish(ctx, alert("one")) // fills the buffer, never read

	pubCtx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() { done <- b.Publish(pubCtx, alert("two")) }()

	select {
	case <-done:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after context canceled")
	}
}

func TestBus_DropOnFullNeverBlocks(t *testing.T) {
	b := New(2)
	defer b.Close()

	lossy := b.Subscribe(WithDropOnFull())
	lossless := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, city := range []string{"Recife", "Olinda", "Caruaru"} {
			b.Publish(ctx, alert(city))
		}
	}()

	// The lossless subscriber is drained; the lossy one is not read at all.
	for _, want := range []string{"Recife", "Olinda", "Caruaru"} {
		assert.Equal(t, want, recv(t, lossless).CityName)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a drop-on-full subscriber")
	}

	assert.Equal(t, uint64(1), lossy.Dropped())
	assert.Equal(t, "Recife", recv(t, lossy).CityName)
	assert.Equal(t, "Olinda", recv(t, lossy).CityName)
	assert.Equal(t, uint64(0), lossless.Dropped())
}
