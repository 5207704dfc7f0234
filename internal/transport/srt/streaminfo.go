package srt

import (
	"fmt"
	"strconv"
	"strings"

	rerrors "github.com/mycrl/mirror/internal/errors"
)

// SocketKind is the role a peer announces in its SRT STREAMID.
type SocketKind uint8

const (
	Publisher  SocketKind = 0
	Subscriber SocketKind = 1
)

// StreamInfo is the payload carried in the SRT STREAMID handshake option,
// encoded as a delimited key-value string: id=<u32>;kind=<0|1>[;port=<u16>].
// Publishers must set Port/HasPort; subscribers must not.
type StreamInfo struct {
	Kind    SocketKind
	ID      uint32
	Port    uint16
	HasPort bool
}

// Encode renders the STREAMID string for this StreamInfo.
func (s StreamInfo) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%d;kind=%d", s.ID, s.Kind)
	if s.HasPort {
		fmt.Fprintf(&b, ";port=%d", s.Port)
	}
	return b.String()
}

// ParseStreamInfo parses a STREAMID string into a StreamInfo. Unknown
// keys are ignored; malformed numeric fields for recognized keys are a
// protocol error.
func ParseStreamInfo(streamID string) (StreamInfo, error) {
	var info StreamInfo

	for _, part := range strings.Split(streamID, ";") {
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}

		switch key {
		case "id":
			id, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return StreamInfo{}, rerrors.NewProtocolError("srt.streaminfo.id", err)
			}
			info.ID = uint32(id)
		case "kind":
			k, err := strconv.ParseUint(val, 10, 8)
			if err != nil || (k != uint64(Publisher) && k != uint64(Subscriber)) {
				return StreamInfo{}, rerrors.NewProtocolError("srt.streaminfo.kind", err)
			}
			info.Kind = SocketKind(k)
		case "port":
			p, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return StreamInfo{}, rerrors.NewProtocolError("srt.streaminfo.port", err)
			}
			info.Port = uint16(p)
			info.HasPort = true
		}
	}

	return info, nil
}
