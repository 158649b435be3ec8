package channel

import (
	"net"
	"testing"
	"time"

	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/message"
	"github.com/source-build/go-wrpc/reactor"
)

func startNsheadEcho(t *testing.T) (wrpc.Endpoint, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	proto, err := message.Get("nshead")
	if err != nil {
		t.Fatalf("message.Get: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				req, err := readNsheadRequest(proto, conn)
				if err != nil {
					return
				}
				resp := &message.Request{Method: req.Method, Body: []byte("echo:" + string(req.Body))}
				_ = proto.WriteTo(conn, resp, time.Time{})
			}()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	ep, err := wrpc.NewEndpoint(addr.IP.String(), addr.Port)
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	return ep, func() { _ = ln.Close() }
}

// readNsheadRequest plays the server side of the Nshead framing for the
// echo test server above: it reads one frame and returns its body as a
// Request, and the caller writes the reply (NsheadProtocol only defines
// the client-facing Writer/Reader pair, so the test fakes the server side
// directly).
func readNsheadRequest(proto message.Protocol, conn net.Conn) (*message.Request, error) {
	resp, err := proto.ReadFrom(conn, time.Time{})
	if err != nil {
		return nil, err
	}
	return &message.Request{Body: resp.Body}, nil
}

func TestChannelNewStaticWiresEndpointManager(t *testing.T) {
	ep, stop := startNsheadEcho(t)
	defer stop()

	opts := wrpc.DefaultChannelOptions()
	opts.Protocol = "nshead"
	opts.LoadBalancer = "round_robin"
	opts.ConnectTimeout = 500 * time.Millisecond
	opts.UpdateEndPointsInterval = 0
	opts.HealthCheckInterval = 0

	react := reactor.New(reactor.NewAddresser(), reactor.DefaultOptions())
	ch, err := NewStatic([]wrpc.Endpoint{ep}, opts, wrpc.DefaultRuntimeOptions(), react)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	defer ch.Close()

	ctrl := ch.CreateController(&message.Request{Method: "PING"})
	if err := ctrl.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	code := ctrl.Join()
	if code != wrpc.CodeSuccess {
		t.Fatalf("expected CodeSuccess, got %s", code)
	}
}

func TestChannelRetryPolicyFallsBackToLoadBalancer(t *testing.T) {
	ep, stop := startNsheadEcho(t)
	defer stop()

	opts := wrpc.DefaultChannelOptions()
	opts.Protocol = "nshead"
	opts.LoadBalancer = "round_robin"
	opts.RetryPolicy = ""
	opts.UpdateEndPointsInterval = 0
	opts.HealthCheckInterval = 0

	react := reactor.New(reactor.NewAddresser(), reactor.DefaultOptions())
	ch, err := NewStatic([]wrpc.Endpoint{ep}, opts, wrpc.DefaultRuntimeOptions(), react)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	defer ch.Close()

	if ch.retryLB != ch.lb {
		t.Fatalf("expected retryLB to alias lb when RetryPolicy is unset")
	}
}

func TestSplitAddressRejectsMissingScheme(t *testing.T) {
	if _, _, err := splitAddress("10.0.0.1:9000"); err == nil {
		t.Fatalf("expected an error for an address with no scheme")
	}
}

func TestSplitAddressParsesSchemeAndValue(t *testing.T) {
	scheme, value, err := splitAddress("list://10.0.0.1:9000,10.0.0.2:9000")
	if err != nil {
		t.Fatalf("splitAddress: %v", err)
	}
	if scheme != "list" || value != "10.0.0.1:9000,10.0.0.2:9000" {
		t.Fatalf("unexpected split: scheme=%q value=%q", scheme, value)
	}
}
