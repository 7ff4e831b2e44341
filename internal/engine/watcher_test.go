package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reentry-engine-go/gateway"
)

func TestAwaitFillPicksUpEdits(t *testing.T) {
	fake := newFakeBroker()
	fake.setPending(gateway.OrderRecord{
		Ticket:     101,
		Symbol:     "EURUSD",
		Direction:  gateway.DirectionLong,
		Kind:       gateway.KindLimit,
		Volume:     0.10,
		Price:      1.0995, // dragged by hand after registration
		StopLoss:   1.0975,
		TakeProfit: 1.1045,
	})
	e := newTestEngine(t, fake, automaticSettings(0, 50))
	o := longOrder(50)

	done := make(chan bool, 1)
	go func() { done <- e.awaitFill(o) }()

	// wait for one full observation cycle so the edit is reconciled
	require.Eventually(t, func() bool {
		return fake.orderQueries() >= 2
	}, time.Second, 2*time.Millisecond)

	fake.fill(101)
	select {
	case filled := <-done:
		assert.True(t, filled)
	case <-time.After(time.Second):
		t.Fatal("awaitFill did not return after the order left the book")
	}

	assert.Equal(t, 1.0995, o.EntryPrice)
	assert.Equal(t, 1.0975, o.StopLoss)
	assert.Equal(t, 1.1045, o.TakeProfit)
}

func TestAwaitFillErrorsDoNotMeanFilled(t *testing.T) {
	fake := newFakeBroker()
	fake.orderErr = errTestBridge
	e := newTestEngine(t, fake, automaticSettings(0, 50))
	o := longOrder(50)

	done := make(chan bool, 1)
	go func() { done <- e.awaitFill(o) }()

	select {
	case <-done:
		t.Fatal("query errors must keep the watcher waiting")
	case <-time.After(50 * time.Millisecond):
	}

	// recovery: clear the error, the empty book now reads as filled
	fake.setOrderErr(nil)
	assert.True(t, <-done)
}

func TestAwaitFillSelfCanceledEndsWatch(t *testing.T) {
	fake := newFakeBroker()
	e := newTestEngine(t, fake, automaticSettings(0, 50))
	o := longOrder(50)

	// the engine withdrew this ticket itself during an adjustment,
	// disappearance must not read as a fill
	e.markSelfCanceled(o.Ticket)
	assert.False(t, e.awaitFill(o))
	assert.False(t, e.consumeSelfCanceled(o.Ticket), "the mark is consumed exactly once")
}

func TestWatchOpenClosureConfirms(t *testing.T) {
	fake := newFakeBroker()
	e := newTestEngine(t, fake, automaticSettings(0, 50))
	e.cfg.ClosureConfirms = 3
	o := longOrder(50)

	start := fake.positionQueries()
	done := make(chan bool, 1)
	go func() { done <- e.watchOpen(o) }()

	select {
	case closed := <-done:
		assert.True(t, closed)
	case <-time.After(time.Second):
		t.Fatal("watchOpen did not report closure")
	}
	assert.GreaterOrEqual(t, fake.positionQueries()-start, 3,
		"closure needs the configured number of consecutive empty reads")
}

func TestWatchOpenPresenceResetsConfirms(t *testing.T) {
	fake := newFakeBroker()
	fake.setPosition(gateway.PositionRecord{
		Ticket:     101,
		Symbol:     "EURUSD",
		Direction:  gateway.DirectionLong,
		Volume:     0.10,
		OpenPrice:  1.1000,
		StopLoss:   1.0978, // stop tightened by hand while open
		TakeProfit: 1.1060,
	})
	e := newTestEngine(t, fake, automaticSettings(0, 50))
	o := longOrder(50)

	start := fake.positionQueries()
	done := make(chan bool, 1)
	go func() { done <- e.watchOpen(o) }()

	// wait for one full observation cycle so the edit is reconciled
	require.Eventually(t, func() bool {
		return fake.positionQueries() >= start+2
	}, time.Second, 2*time.Millisecond)

	fake.removePosition(101)
	select {
	case closed := <-done:
		assert.True(t, closed)
	case <-time.After(time.Second):
		t.Fatal("watchOpen did not report closure after position vanished")
	}

	assert.Equal(t, 1.0978, o.StopLoss)
	assert.Equal(t, 1.1060, o.TakeProfit)
}

func TestWatchOpenErrorsDoNotCountAsEmpty(t *testing.T) {
	fake := newFakeBroker()
	fake.posErr = errTestBridge
	e := newTestEngine(t, fake, automaticSettings(0, 50))
	o := longOrder(50)

	done := make(chan bool, 1)
	go func() { done <- e.watchOpen(o) }()

	select {
	case <-done:
		t.Fatal("query errors must not be treated as closure")
	case <-time.After(50 * time.Millisecond):
	}

	fake.setPosErr(nil)
	assert.True(t, <-done) // now genuinely absent
}
