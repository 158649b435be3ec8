package message

import (
	"io"
	"net"
	"testing"
	"time"
)

func pipeConns(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestHTTPWriteToAddsContentLengthAndHost(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewHTTPProtocol()

	done := make(chan error, 1)
	go func() {
		err := proto.WriteTo(client, &Request{Method: "GET", URI: "/foo", Body: []byte("hi")}, time.Time{})
		client.Close()
		done <- err
	}()

	data, err := io.ReadAll(server)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	raw := string(data)
	if err := <-done; err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !contains(raw, "GET /foo HTTP/1.1\r\n") {
		t.Fatalf("missing request line, got %q", raw)
	}
	if !contains(raw, "Content-Length: 2\r\n") {
		t.Fatalf("missing auto Content-Length, got %q", raw)
	}
	if !contains(raw, "Host: pipe\r\n") {
		t.Fatalf("missing auto Host, got %q", raw)
	}
	if !contains(raw, "hi") {
		t.Fatalf("missing body, got %q", raw)
	}
}

func TestHTTPReadFromParsesFixedLengthBody(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewHTTPProtocol()

	go func() {
		server.Write([]byte("HTTP/1.1 204 No Content\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	resp, err := proto.ReadFrom(client, time.Time{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if resp.StatusCode != 204 || string(resp.Body) != "hello" {
		t.Fatalf("got %+v", resp)
	}
}

func TestHTTPReadFromParsesChunkedBody(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewHTTPProtocol()

	go func() {
		server.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"))
	}()

	resp, err := proto.ReadFrom(client, time.Time{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(resp.Body) != "Wikipedia" {
		t.Fatalf("got body %q", resp.Body)
	}
}

func TestNsheadRoundTrip(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewNsheadProtocol()

	go func() {
		proto.WriteTo(server, &Request{Body: []byte("payload"), LogID: 42}, time.Time{})
	}()

	resp, err := proto.ReadFrom(client, time.Time{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(resp.Body) != "payload" {
		t.Fatalf("got body %q", resp.Body)
	}
}

func TestNsheadRejectsBadMagic(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewNsheadProtocol()

	go func() {
		server.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0})
	}()

	_, err := proto.ReadFrom(client, time.Time{})
	if err == nil {
		t.Fatalf("expected a message-not-match error for a bad magic number")
	}
}

func TestRedisNilBulkReply(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewRedisProtocol()

	go func() {
		server.Write([]byte("$-1\r\n"))
	}()

	resp, err := proto.ReadFrom(client, time.Time{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !resp.Redis.Nil || resp.Redis.Type != RedisBulk {
		t.Fatalf("expected a nil bulk reply, got %+v", resp.Redis)
	}
}

func TestRedisArrayReply(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewRedisProtocol()

	go func() {
		server.Write([]byte("*2\r\n$3\r\nfoo\r\n:7\r\n"))
	}()

	resp, err := proto.ReadFrom(client, time.Time{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if resp.Redis.Type != RedisArray || len(resp.Redis.Items) != 2 {
		t.Fatalf("got %+v", resp.Redis)
	}
	if resp.Redis.Items[0].Str != "foo" || resp.Redis.Items[1].Int != 7 {
		t.Fatalf("got items %+v", resp.Redis.Items)
	}
}

func TestRedisWriteToBuildsCommandArray(t *testing.T) {
	client, server := pipeConns(t)
	proto := NewRedisProtocol()

	go proto.WriteTo(client, &Request{Args: []string{"GET", "foo"}}, time.Time{})

	buf := make([]byte, 64)
	n, err := io.ReadFull(server, buf[:len("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryLooksUpBuiltins(t *testing.T) {
	for _, name := range []string{"http", "redis", "nshead"} {
		if _, err := Get(name); err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
	}
	if _, err := Get("not-a-protocol"); err == nil {
		t.Fatalf("expected ErrProtocolNotFound")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
