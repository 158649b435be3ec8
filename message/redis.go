package message

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	wrpc "github.com/source-build/go-wrpc"
)

// RedisProtocol implements RESP request/response framing: requests are
// sent as `*N\r\n$L1\r\narg1\r\n...`; replies are discriminated by their
// first byte. Hand-rolled against the RESP grammar directly (go-redis is
// dropped, see DESIGN.md).
type RedisProtocol struct{}

func NewRedisProtocol() *RedisProtocol { return &RedisProtocol{} }

func (RedisProtocol) Name() string { return "redis" }

func (RedisProtocol) WriteTo(sink net.Conn, req *Request, deadline time.Time) error {
	if err := setDeadlines(sink, deadline); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(req.Args))
	for _, arg := range req.Args {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(arg), arg)
	}

	if _, err := sink.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	return nil
}

func (RedisProtocol) ReadFrom(source net.Conn, deadline time.Time) (*Response, error) {
	if err := setDeadlines(source, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	br := bufio.NewReader(source)
	val, err := readRESPValue(br)
	if err != nil {
		return nil, err
	}
	return &Response{Redis: val}, nil
}

func readRESPValue(br *bufio.Reader) (RedisValue, error) {
	line, err := readLine(br)
	if err != nil {
		return RedisValue{}, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	if len(line) == 0 {
		return RedisValue{}, fmt.Errorf("%w: empty RESP line", wrpc.ErrParseMessage)
	}

	typ := RedisType(line[0])
	payload := line[1:]

	switch typ {
	case RedisStatus:
		return RedisValue{Type: typ, Str: payload}, nil
	case RedisError:
		kind, detail, _ := strings.Cut(payload, " ")
		return RedisValue{Type: typ, Kind: kind, Str: detail}, nil
	case RedisInteger:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return RedisValue{}, fmt.Errorf("%w: bad RESP integer %q", wrpc.ErrParseMessage, payload)
		}
		return RedisValue{Type: typ, Int: n}, nil
	case RedisBulk:
		n, err := strconv.Atoi(payload)
		if err != nil {
			return RedisValue{}, fmt.Errorf("%w: bad RESP bulk length %q", wrpc.ErrParseMessage, payload)
		}
		if n < 0 {
			return RedisValue{Type: typ, Nil: true}, nil
		}
		buf := make([]byte, n+2) // payload + trailing CRLF
		if _, err := io.ReadFull(br, buf); err != nil {
			return RedisValue{}, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
		return RedisValue{Type: typ, Str: string(buf[:n])}, nil
	case RedisArray:
		n, err := strconv.Atoi(payload)
		if err != nil {
			return RedisValue{}, fmt.Errorf("%w: bad RESP array length %q", wrpc.ErrParseMessage, payload)
		}
		if n < 0 {
			return RedisValue{Type: typ, Nil: true}, nil
		}
		items := make([]RedisValue, n)
		for i := 0; i < n; i++ {
			item, err := readRESPValue(br)
			if err != nil {
				return RedisValue{}, err
			}
			items[i] = item
		}
		return RedisValue{Type: typ, Items: items}, nil
	default:
		return RedisValue{}, fmt.Errorf("%w: unknown RESP discriminator %q", wrpc.ErrMessageNotMatch, line[0])
	}
}
