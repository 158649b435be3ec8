// Command wrpcdemo submits a request through one Channel against a
// statically configured endpoint, printing the session's outcome. A
// minimal driver for the session/channel API.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	wrpc "github.com/source-build/go-wrpc"
	"github.com/source-build/go-wrpc/channel"
	"github.com/source-build/go-wrpc/flog"
	"github.com/source-build/go-wrpc/message"
	"github.com/source-build/go-wrpc/reactor"
)

// envType is a "development vs production" environment switch, here
// driving only the log level since this demo has no other
// per-environment behavior to split on.
type envType string

const (
	envDevelopment envType = "development"
	envProduction  envType = "production"
)

func projectEnv() envType {
	v := os.Getenv("WRPC_ENV")
	if v == "" {
		log.Println("WRPC_ENV not set, defaulting to development")
		return envDevelopment
	}
	switch envType(v) {
	case envDevelopment, envProduction:
		return envType(v)
	default:
		log.Fatalf("invalid WRPC_ENV %q: must be %q or %q", v, envDevelopment, envProduction)
		return envDevelopment
	}
}

func main() {
	level := flog.DebugLevel
	if projectEnv() == envProduction {
		level = flog.InfoLevel
	}
	flog.Init(flog.Options{
		LogLevel:          level,
		EncoderConfigType: flog.ProductionEncoderConfig,
		Console:           true,
	})
	defer flog.Sync()

	addr := os.Getenv("WRPC_ADDR")
	if addr == "" {
		addr = "127.0.0.1:9000"
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Fatalf("invalid WRPC_ADDR %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("invalid WRPC_ADDR port %q: %v", portStr, err)
	}
	ep, err := wrpc.NewEndpoint(host, port)
	if err != nil {
		log.Fatalf("new endpoint: %v", err)
	}

	opts := wrpc.DefaultChannelOptions()
	opts.Protocol = "nshead"
	opts.LoadBalancer = "round_robin"

	react := reactor.New(reactor.NewAddresser(), reactor.DefaultOptions())
	ch, err := channel.NewStatic([]wrpc.Endpoint{ep}, opts, wrpc.DefaultRuntimeOptions(), react)
	if err != nil {
		log.Fatalf("new channel: %v", err)
	}
	defer ch.Close()

	ctrl := ch.CreateController(&message.Request{Method: "PING", Body: []byte("hello")})
	if err := ctrl.Submit(); err != nil {
		log.Fatalf("submit: %v", err)
	}
	code := ctrl.Join()
	fmt.Printf("log_id=%s status=%s code=%s\n", ctrl.LogID(), ctrl.Status(), code)
	if resp := ctrl.Response(); resp != nil {
		fmt.Printf("response: %s\n", resp.Reason)
	}
}
