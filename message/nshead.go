package message

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	wrpc "github.com/source-build/go-wrpc"
)

// nsheadMagic is the fixed magic number identifying a well-formed
// header. Mismatch is a message-not-match error, not a parse error.
const nsheadMagic uint32 = 0xfb709394

const nsheadSize = 4 + 4 + 2 + 4 + 4 // magic, logID, version, reserved, bodyLen

// NsheadProtocol implements the fixed binary header framing: magic(4) +
// logID(4) + version(2) + reserved(4) + bodyLen(4), big-endian, followed
// by bodyLen bytes of payload.
type NsheadProtocol struct {
	// Version is written into every outgoing header; defaults to 1.
	Version uint16
}

func NewNsheadProtocol() *NsheadProtocol { return &NsheadProtocol{Version: 1} }

func (NsheadProtocol) Name() string { return "nshead" }

func (n *NsheadProtocol) WriteTo(sink net.Conn, req *Request, deadline time.Time) error {
	if err := setDeadlines(sink, deadline); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}

	version := n.Version
	if version == 0 {
		version = 1
	}

	header := make([]byte, nsheadSize)
	binary.BigEndian.PutUint32(header[0:4], nsheadMagic)
	binary.BigEndian.PutUint32(header[4:8], req.LogID)
	binary.BigEndian.PutUint16(header[8:10], version)
	binary.BigEndian.PutUint32(header[10:14], 0) // reserved
	binary.BigEndian.PutUint32(header[14:18], uint32(len(req.Body)))

	if _, err := sink.Write(header); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}
	if len(req.Body) > 0 {
		if _, err := sink.Write(req.Body); err != nil {
			return fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
	}
	return nil
}

func (NsheadProtocol) ReadFrom(source net.Conn, deadline time.Time) (*Response, error) {
	if err := setDeadlines(source, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}

	header := make([]byte, nsheadSize)
	if _, err := io.ReadFull(source, header); err != nil {
		return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
	}

	magic := binary.BigEndian.Uint32(header[0:4])
	if magic != nsheadMagic {
		return nil, fmt.Errorf("%w: nshead magic %#x", wrpc.ErrMessageNotMatch, magic)
	}
	version := binary.BigEndian.Uint16(header[8:10])
	bodyLen := binary.BigEndian.Uint32(header[14:18])

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(source, body); err != nil {
			return nil, fmt.Errorf("%w: %v", wrpc.ErrDisconnected, err)
		}
	}

	return &Response{
		StatusCode: int(version),
		Body:       body,
	}, nil
}
