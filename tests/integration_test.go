// Package tests exercises the broker end-to-end over its real line-framed
// TCP protocol, rather than calling into pkg/broker directly. Each test
// dials a freshly started server on an ephemeral port, the way a real
// client would.
package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/brokerhq/jobcentre/pkg/broker"
	"github.com/brokerhq/jobcentre/pkg/server"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(req map[string]any) {
	c.t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("marshal request: %v", err)
	}
	line = append(line, '\n')
	if _, err := c.conn.Write(line); err != nil {
		c.t.Fatalf("write request: %v", err)
	}
}

func (c *testClient) recv() map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("read response: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(line, &resp); err != nil {
		c.t.Fatalf("unmarshal response %q: %v", line, err)
	}
	return resp
}

func startServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := broker.New(nil)
	go b.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	srv := server.New(addr, b, nil)

	started := make(chan error, 1)
	go func() {
		started <- srv.ListenAndServe(ctx)
	}()

	// Give the listener a moment to bind before the first dial.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return addr
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never started listening on %s", addr)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPutGetAbortDeleteOverTheWire(t *testing.T) {
	addr := startServer(t)

	producer := dial(t, addr)
	producer.send(map[string]any{"request": "put", "queue": "q1", "pri": 3, "job": map[string]any{"task": "build"}})
	putResp := producer.recv()
	if putResp["status"] != "ok" {
		t.Fatalf("put failed: %+v", putResp)
	}
	id := putResp["id"]

	consumer := dial(t, addr)
	consumer.send(map[string]any{"request": "get", "queues": []string{"q1"}})
	getResp := consumer.recv()
	if getResp["status"] != "ok" || getResp["id"] != id || getResp["queue"] != "q1" {
		t.Fatalf("get failed: %+v", getResp)
	}

	consumer.send(map[string]any{"request": "abort", "id": id})
	abortResp := consumer.recv()
	if abortResp["status"] != "ok" {
		t.Fatalf("abort failed: %+v", abortResp)
	}

	consumer.send(map[string]any{"request": "get", "queues": []string{"q1"}})
	secondGet := consumer.recv()
	if secondGet["status"] != "ok" || secondGet["id"] != id {
		t.Fatalf("expected aborted job to be re-delivered, got %+v", secondGet)
	}

	consumer.send(map[string]any{"request": "delete", "id": id})
	deleteResp := consumer.recv()
	if deleteResp["status"] != "ok" {
		t.Fatalf("delete failed: %+v", deleteResp)
	}

	consumer.send(map[string]any{"request": "delete", "id": id})
	secondDelete := consumer.recv()
	if secondDelete["status"] != "no-job" {
		t.Fatalf("expected second delete to be no-job, got %+v", secondDelete)
	}
}

func TestBlockingGetAcrossConnections(t *testing.T) {
	addr := startServer(t)

	consumer := dial(t, addr)
	consumer.send(map[string]any{"request": "get", "queues": []string{"urgent", "default"}, "wait": true})

	responses := make(chan map[string]any, 1)
	go func() { responses <- consumer.recv() }()

	select {
	case <-responses:
		t.Fatal("blocking get resolved before any job was available")
	case <-time.After(100 * time.Millisecond):
	}

	producer := dial(t, addr)
	producer.send(map[string]any{"request": "put", "queue": "urgent", "pri": 1, "job": "hurry"})
	putResp := producer.recv()
	if putResp["status"] != "ok" {
		t.Fatalf("put failed: %+v", putResp)
	}

	select {
	case got := <-responses:
		if got["status"] != "ok" || got["queue"] != "urgent" || got["id"] != putResp["id"] {
			t.Fatalf("blocked get woke with unexpected response: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked get was never woken by the put")
	}
}

func TestDisconnectReleasesOwnedJob(t *testing.T) {
	addr := startServer(t)

	producer := dial(t, addr)
	producer.send(map[string]any{"request": "put", "queue": "q1", "pri": 1, "job": "x"})
	putResp := producer.recv()

	owner, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ownerClient := &testClient{t: t, conn: owner, r: bufio.NewReader(owner)}
	ownerClient.send(map[string]any{"request": "get", "queues": []string{"q1"}})
	ownerGet := ownerClient.recv()
	if ownerGet["status"] != "ok" {
		t.Fatalf("owner get failed: %+v", ownerGet)
	}

	// Disconnect without aborting or deleting; the job must be re-queued.
	owner.Close()

	consumer := dial(t, addr)
	deadline := time.Now().Add(2 * time.Second)
	for {
		consumer.send(map[string]any{"request": "get", "queues": []string{"q1"}})
		resp := consumer.recv()
		if resp["status"] == "ok" {
			if resp["id"] != putResp["id"] {
				t.Fatalf("unexpected job delivered: %+v", resp)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job was never re-queued after owner disconnect, last response: %+v", resp)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMalformedRequestDoesNotMutateState(t *testing.T) {
	addr := startServer(t)

	client := dial(t, addr)
	client.send(map[string]any{"request": "put", "queue": "q1", "pri": 1.5, "job": "x"})
	resp := client.recv()
	if resp["status"] != "error" {
		t.Fatalf("expected error for fractional priority, got %+v", resp)
	}

	client.send(map[string]any{"request": "get", "queues": []string{"q1"}})
	getResp := client.recv()
	if getResp["status"] != "no-job" {
		t.Fatalf("malformed put should not have created a job, got %+v", getResp)
	}
}
