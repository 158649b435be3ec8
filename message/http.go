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

// HTTPProtocol implements HTTP/1.x request framing and response parsing,
// including chunked transfer-encoding. Follows the request-out/
// blocking-read-in round trip shape of an RPC call path, retargeted
// from a gRPC codec to raw HTTP/1.x bytes.
type HTTPProtocol struct{}

func NewHTTPProtocol() *HTTPProtocol { return &HTTPProtocol{} }

func (HTTPProtocol) Name() string { return "http" }

func (HTTPProtocol) WriteTo(sink net.Conn, req *Request, deadline time.Time) error {
	if err := setDeadlines(sink, deadline); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}

	version := req.Version
	if version == "" {
		version = "1.1"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/%s\r\n", req.Method, req.URI, version)

	hasHost := false
	hasTransferEncoding := false
	hasContentLength := false
	for _, h := range req.Headers {
		switch strings.ToLower(h.Name) {
		case "host":
			hasHost = true
		case "transfer-encoding":
			hasTransferEncoding = true
		case "content-length":
			hasContentLength = true
		}
	}
	if !hasHost {
		fmt.Fprintf(&b, "Host: %s\r\n", hostFromConn(sink))
	}
	for _, h := range req.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	if !hasTransferEncoding && !hasContentLength {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(req.Body))
	}
	b.WriteString("\r\n")

	if _, err := sink.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	if len(req.Body) > 0 {
		if _, err := sink.Write(req.Body); err != nil {
			return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
	}
	return nil
}

func hostFromConn(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (HTTPProtocol) ReadFrom(source net.Conn, deadline time.Time) (*Response, error) {
	if err := setDeadlines(source, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	br := bufio.NewReader(source)

	statusLine, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	version, code, reason, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	resp := &Response{StatusCode: code, Reason: reason, Version: version}

	contentLength := -1
	chunked := false
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed header %q", wrpc.ErrParseMessage, line)
		}
		value = strings.TrimLeft(value, " \t")
		resp.Headers = append(resp.Headers, Header{Name: name, Value: value})
		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad Content-Length %q", wrpc.ErrParseMessage, value)
			}
			contentLength = n
		case "transfer-encoding":
			if strings.EqualFold(strings.TrimSpace(value), "chunked") {
				chunked = true
			}
		}
	}

	switch {
	case chunked:
		body, err := readChunkedBody(br)
		if err != nil {
			return nil, err
		}
		resp.Body = body
	case contentLength > 0:
		body := make([]byte, contentLength)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
		resp.Body = body
	}
	return resp, nil
}

func parseStatusLine(line string) (version string, code int, reason string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return "", 0, "", fmt.Errorf("%w: malformed status line %q", wrpc.ErrMessageNotMatch, line)
	}
	version = strings.TrimPrefix(parts[0], "HTTP/")
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: malformed status code in %q", wrpc.ErrMessageNotMatch, line)
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return version, code, reason, nil
}

func readChunkedBody(br *bufio.Reader) ([]byte, error) {
	var body []byte
	for {
		sizeLine, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
		sizeStr, _, _ := strings.Cut(sizeLine, ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad chunk size %q", wrpc.ErrParseMessage, sizeLine)
		}
		if size == 0 {
			// trailing CRLF after the terminating zero-size chunk.
			if _, err := readLine(br); err != nil {
				return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
			}
			return body, nil
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
		body = append(body, chunk...)
		if _, err := readLine(br); err != nil { // chunk-trailing CRLF
			return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
