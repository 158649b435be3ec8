package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/source-build/go-wrpc/message"
)

type recordingHandle struct {
	readable chan *message.Response
	errs     chan error
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{readable: make(chan *message.Response, 1), errs: make(chan error, 1)}
}

func (r *recordingHandle) OnReadable(_ uintptr, resp *message.Response) { r.readable <- resp }
func (r *recordingHandle) OnError(_ uintptr, err error)                 { r.errs <- err }

func TestAddListenerDispatchesOnSuccessfulRead(t *testing.T) {
	addresser := NewAddresser()
	r := New(addresser, DefaultOptions())

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	handle := newRecordingHandle()
	addresser.Register("sess-1", handle)

	readFn := func(conn net.Conn, _ time.Time) (*message.Response, error) {
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			return nil, err
		}
		return &message.Response{Body: buf}, nil
	}

	if err := r.AddListener("sess-1", client, time.Time{}, readFn); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	go server.Write([]byte("hello"))

	select {
	case resp := <-handle.readable:
		if string(resp.Body) != "hello" {
			t.Fatalf("got body %q", resp.Body)
		}
	case err := <-handle.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestAddListenerDispatchesOnErrorReadsToOnError(t *testing.T) {
	addresser := NewAddresser()
	r := New(addresser, DefaultOptions())

	client, server := net.Pipe()
	defer client.Close()
	server.Close()

	handle := newRecordingHandle()
	addresser.Register("sess-2", handle)

	readFn := func(conn net.Conn, _ time.Time) (*message.Response, error) {
		buf := make([]byte, 5)
		_, err := conn.Read(buf)
		return nil, err
	}

	if err := r.AddListener("sess-2", client, time.Time{}, readFn); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	select {
	case <-handle.readable:
		t.Fatal("expected an error dispatch, got a readable one")
	case err := <-handle.errs:
		if err == nil {
			t.Fatal("expected a non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestDispatchToRemovedSessionIsNoop(t *testing.T) {
	addresser := NewAddresser()
	r := New(addresser, DefaultOptions())

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	handle := newRecordingHandle()
	addresser.Register("sess-3", handle)
	addresser.Remove("sess-3") // removed before the read ever completes

	readFn := func(conn net.Conn, _ time.Time) (*message.Response, error) {
		buf := make([]byte, 1)
		if _, err := conn.Read(buf); err != nil {
			return nil, err
		}
		return &message.Response{}, nil
	}

	if err := r.AddListener("sess-3", client, time.Time{}, readFn); err != nil {
		t.Fatalf("AddListener: %v", err)
	}
	server.Write([]byte("x"))

	select {
	case <-handle.readable:
		t.Fatal("removed session must not receive a dispatch")
	case <-handle.errs:
		t.Fatal("removed session must not receive a dispatch")
	case <-time.After(200 * time.Millisecond):
		// expected: no dispatch.
	}
}

func TestAddListenerRejectsDuplicateRegistration(t *testing.T) {
	addresser := NewAddresser()
	r := New(addresser, DefaultOptions())

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	readFn := func(conn net.Conn, _ time.Time) (*message.Response, error) {
		buf := make([]byte, 1)
		conn.Read(buf)
		return &message.Response{}, nil
	}

	if err := r.AddListener("sess-4", client, time.Time{}, readFn); err != nil {
		t.Fatalf("first AddListener: %v", err)
	}
	if err := r.AddListener("sess-4", client, time.Time{}, readFn); err == nil {
		t.Fatalf("expected duplicate registration to be rejected")
	}
	server.Write([]byte("x"))
}

func TestRemoveListenerIsIdempotent(t *testing.T) {
	addresser := NewAddresser()
	r := New(addresser, DefaultOptions())
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r.RemoveListener("never-registered", client)
	r.RemoveListener("never-registered", client)
}
