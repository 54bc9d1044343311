// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient builds a hub client without a network connection.
func testClient(buffer int) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		send: make(chan Message, buffer),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	h := startHub(t)

	a := testClient(4)
	b := testClient(4)
	h.Register <- a
	h.Register <- b

	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	h.BroadcastJSON(MessageTypeAlert, map[string]string{"source_id": "cam1"})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			assert.Equal(t, MessageTypeAlert, msg.Type)
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := startHub(t)

	c := testClient(4)
	h.Register <- c
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Unregister <- c
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	_, open := <-c.send
	assert.False(t, open)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := startHub(t)

	slow := testClient(1)
	healthy := testClient(8)
	h.Register <- slow
	h.Register <- healthy
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	// The slow client's single-slot buffer fills on the first message.
	for i := 0; i < 4; i++ {
		h.BroadcastJSON(MessageTypeStatsUpdate, i)
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// The healthy client keeps receiving.
	select {
	case msg := <-healthy.send:
		assert.Equal(t, MessageTypeStatsUpdate, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("healthy client starved")
	}
}

func TestHubShutdownClosesAllClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()

	c := testClient(4)
	h.Register <- c
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, open := <-c.send
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())
}

func TestBroadcastJSONNeverBlocks(t *testing.T) {
	h := NewHub() // not served, so the queue only drains into its buffer

	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.BroadcastJSON(MessageTypeStatsUpdate, i)
	}
	assert.Len(t, h.broadcast, cap(h.broadcast))
}
