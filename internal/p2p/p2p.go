// Package p2p implements the peer address, the wire-message envelope, and
// the framed-connection transport: every message is an 8 ASCII decimal
// byte length prefix followed by that many UTF-8 bytes of JSON. Grounded
// on original_source/pbcoin/netbase.py, whose 8-character zero-padded
// decimal size prefix the teacher's 12-byte command-name framing does not
// match.
package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const lengthPrefixWidth = 8

var (
	ErrFrameTooLarge = errors.New("p2p: frame length exceeds limit")
	ErrBadLength     = errors.New("p2p: malformed length prefix")
)

// maxFrameBytes bounds a single frame to guard against a malicious or
// corrupt peer claiming an unbounded length.
const maxFrameBytes = 64 << 20

// Addr identifies a peer: its dial address and its public key. Two
// addresses are equal iff ip, port, and pub_key all match.
type Addr struct {
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	PubKey string `json:"pub_key"`
}

func (a Addr) Equal(o Addr) bool {
	return a.IP == o.IP && a.Port == o.Port && a.PubKey == o.PubKey
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// ConnectionCode enumerates successful message types (status == true).
type ConnectionCode int

const (
	OKMessage ConnectionCode = iota + 1
	NewNeighbor
	NewNeighborsRequest
	NewNeighborsFind
	NotNeighbor
	MinedBlock
	ResolveBlockchain
	GetBlocks
	SendBlocks
	AddTrx
	PingPong
)

// Errno enumerates failure message types (status == false).
type Errno int

const (
	BadMessage Errno = iota + 1
	BadTypeMessage
	BadBlockValidation
	BadTransaction
	ObsoleteBlock
)

// Envelope is the wire message. Type holds a ConnectionCode when
// Status is true and an Errno when Status is false — the spec's
// double-role "type" slot, kept as a single tagged union distinguished by
// Status per §9.
type Envelope struct {
	Status  bool            `json:"status"`
	Type    int             `json:"type"`
	SrcAddr string          `json:"src_addr"`
	DstAddr string          `json:"dst_addr"`
	PubKey  string          `json:"pub_key"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Ok builds a successful envelope.
func Ok(code ConnectionCode, src, dst, pubKey string, data any) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{Status: true, Type: int(code), SrcAddr: src, DstAddr: dst, PubKey: pubKey, Data: raw}
}

// Fail builds a failure envelope.
func Fail(errno Errno, src, dst, pubKey string, data any) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{Status: false, Type: int(errno), SrcAddr: src, DstAddr: dst, PubKey: pubKey, Data: raw}
}

// WriteFramed writes payload as an 8-decimal-byte length prefix followed
// by the payload itself.
func WriteFramed(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameBytes {
		return ErrFrameTooLarge
	}
	prefix := fmt.Sprintf("%0*d", lengthPrefixWidth, len(payload))
	if _, err := io.WriteString(w, prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFramed reads exactly one frame: 8 decimal bytes giving the payload
// length, then that many bytes of payload.
func ReadFramed(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, lengthPrefixWidth)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(string(lenBuf))
	if err != nil || n < 0 {
		return nil, ErrBadLength
	}
	if n > maxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteEnvelope marshals env and writes it as a single frame.
func WriteEnvelope(w io.Writer, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return WriteFramed(w, raw)
}

// ReadEnvelope reads one frame and unmarshals it into an Envelope.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	raw, err := ReadFramed(r)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
