package idl

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"
)

// On-chain IDL account layout: an 8-byte discriminator, the 32-byte
// authority that may rewrite the IDL, a u32 little-endian payload
// length, then the DEFLATE-compressed JSON payload.
const (
	discriminatorLen = 8
	authorityLen     = 32
	lengthLen        = 4
	headerLen        = discriminatorLen + authorityLen + lengthLen

	// maxInflated caps decompression output so a hostile account can't
	// balloon memory.
	maxInflated = 16 << 20
)

// DecodeAccount extracts, inflates, and parses the definition stored in
// a raw IDL account. The discriminator and authority are skipped; only
// the declared-length payload is read.
func DecodeAccount(data []byte) (*Definition, error) {
	if len(data) < headerLen {
		return nil, &ParseError{Reason: "account data shorter than header"}
	}
	declared := binary.LittleEndian.Uint32(data[discriminatorLen+authorityLen : headerLen])
	payload := data[headerLen:]
	if uint64(declared) > uint64(len(payload)) {
		return nil, &ParseError{Reason: "declared payload length exceeds account data"}
	}
	payload = payload[:declared]

	fr := flate.NewReader(bytes.NewReader(payload))
	defer fr.Close()
	inflated, err := io.ReadAll(io.LimitReader(fr, maxInflated+1))
	if err != nil {
		return nil, &ParseError{Reason: "inflate payload", Err: err}
	}
	if len(inflated) > maxInflated {
		return nil, &ParseError{Reason: "inflated payload too large"}
	}
	return Parse(inflated)
}
