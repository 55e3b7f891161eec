package ibkr

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The gateway speaks length-prefixed frames of NUL-separated ASCII fields:
// a 4-byte big-endian payload length followed by the fields, each field
// terminated by a NUL byte.

const maxFrameSize = 1 << 20

// Outgoing message ids.
const (
	outReqMktData    = 1
	outCancelMktData = 2
	outStartAPI      = 71
)

// Incoming message ids.
const (
	inTickPrice         = 1
	inTickSize          = 2
	inErrMsg            = 4
	inNextValidID       = 9
	inManagedAccts      = 15
	inTickOptionComp    = 21
	inTickGeneric       = 45
	inTickString        = 46
)

// Tick types carried by price/size/generic messages.
const (
	tickBidSize      = 0
	tickBid          = 1
	tickAsk          = 2
	tickAskSize      = 3
	tickLast         = 4
	tickLastSize     = 5
	tickHigh         = 6
	tickLow          = 7
	tickVolume       = 8
	tickClose        = 9
	tickOpenInterest = 22
	tickOptionIV     = 24
)

// Generic tick list requested per contract: volume averages, open interest,
// historical/implied volatility.
const genericTickList = "100,101,104,105,106"

func writeFrame(w io.Writer, fields ...string) error {
	payload := strings.Join(fields, "\x00") + "\x00"
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]string, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("invalid frame size %d", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSuffix(string(payload), "\x00"), "\x00")
	return fields, nil
}

func fieldInt(fields []string, i int) int {
	if i >= len(fields) {
		return 0
	}
	n, _ := strconv.Atoi(fields[i])
	return n
}

func fieldFloat(fields []string, i int) float64 {
	if i >= len(fields) {
		return 0
	}
	f, _ := strconv.ParseFloat(fields[i], 64)
	return f
}

func fieldStr(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}
