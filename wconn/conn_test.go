package wconn

import (
	"net"
	"testing"
	"time"

	wrpc "github.com/source-build/go-wrpc"
)

func startEchoListener(t *testing.T) (wrpc.Endpoint, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	ep, err := wrpc.NewEndpoint(addr.IP.String(), addr.Port)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	return ep, func() { ln.Close() }
}

func TestDialWriteRead(t *testing.T) {
	ep, cleanup := startEchoListener(t)
	defer cleanup()

	c, err := Dial(ep, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("ping"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := c.Read(buf, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("echo = %q, want ping", buf)
	}
}

func TestPoolFetchGiveBackReusesConnection(t *testing.T) {
	ep, cleanup := startEchoListener(t)
	defer cleanup()

	dials := 0
	pool := NewPool(ep, 2, func() (*Connection, error) {
		dials++
		return Dial(ep, time.Second)
	})

	c1, err := pool.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	pool.GiveBack(c1)
	if got := pool.Len(); got != 1 {
		t.Fatalf("idle len = %d, want 1", got)
	}

	c2, err := pool.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if dials != 1 {
		t.Fatalf("dials = %d, want 1 (connection should have been reused)", dials)
	}
	pool.GiveBack(c2)
	pool.Close()
}

func TestPoolGiveBackClosesOverCapacity(t *testing.T) {
	ep, cleanup := startEchoListener(t)
	defer cleanup()

	pool := NewPool(ep, 1, func() (*Connection, error) { return Dial(ep, time.Second) })
	c1, _ := pool.Fetch()
	c2, _ := pool.Fetch()
	pool.GiveBack(c1)
	pool.GiveBack(c2) // pool already has 1 idle at capacity 1; this one must be closed
	if got := pool.Len(); got != 1 {
		t.Fatalf("idle len = %d, want 1", got)
	}
	pool.Close()
}
