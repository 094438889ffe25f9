/*
NAME
  amf0.go

DESCRIPTION
  amf0.go provides a minimal AMF0 decoder sufficient to read the onMetaData
  script tag's key/value payload. It is not a general AMF0 codec: only the
  subset of markers onMetaData actually uses is handled, matching the scope
  of the data this package needs to reproduce byte-identically (the triad is
  never re-encoded, only re-emitted verbatim) and to report through logging.

AUTHORS
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package flv

import (
	"errors"
	"math"
)

// AMF0 type markers used by onMetaData payloads.
const (
	amf0Number     = 0x00
	amf0Boolean    = 0x01
	amf0String     = 0x02
	amf0Object     = 0x03
	amf0Null       = 0x05
	amf0Undefined  = 0x06
	amf0ECMAArray  = 0x08
	amf0ObjectEnd  = 0x09
	amf0StrictArr  = 0x0A
)

var (
	errAMF0Truncated = errors.New("AMF0 value truncated")
	errAMF0NotObject = errors.New("onMetaData value is not an object or ECMA array")
)

// DecodeOnMetaData decodes a Script tag's payload, which is expected to be
// the two-value AMF0 sequence ["onMetaData", <object-or-ecma-array>], and
// returns the object's key/value pairs. Values are one of: float64, bool,
// string, nil, map[string]interface{} for nested objects, or []interface{}
// for strict arrays.
func DecodeOnMetaData(payload []byte) (name string, meta map[string]interface{}, err error) {
	off := 0
	v, err := decodeAMF0Value(payload, &off)
	if err != nil {
		return "", nil, malformed("AMF0 onMetaData name", err)
	}
	name, _ = v.(string)

	v, err = decodeAMF0Value(payload, &off)
	if err != nil {
		return name, nil, malformed("AMF0 onMetaData value", err)
	}
	meta, ok := v.(map[string]interface{})
	if !ok {
		return name, nil, malformed("AMF0 onMetaData value", errAMF0NotObject)
	}
	return name, meta, nil
}

// decodeAMF0Value decodes one AMF0 value starting at *off, advancing *off
// past it.
func decodeAMF0Value(b []byte, off *int) (interface{}, error) {
	if *off >= len(b) {
		return nil, errAMF0Truncated
	}
	marker := b[*off]
	*off++
	switch marker {
	case amf0Number:
		if *off+8 > len(b) {
			return nil, errAMF0Truncated
		}
		bits := order.Uint64(b[*off : *off+8])
		*off += 8
		return math.Float64frombits(bits), nil
	case amf0Boolean:
		if *off+1 > len(b) {
			return nil, errAMF0Truncated
		}
		v := b[*off] != 0
		*off++
		return v, nil
	case amf0String:
		return decodeAMF0String(b, off)
	case amf0Object:
		return decodeAMF0Object(b, off)
	case amf0Null, amf0Undefined:
		return nil, nil
	case amf0ECMAArray:
		if *off+4 > len(b) {
			return nil, errAMF0Truncated
		}
		*off += 4 // Approximate element count; ignored, object parsing is self-terminating.
		return decodeAMF0Object(b, off)
	case amf0StrictArr:
		if *off+4 > len(b) {
			return nil, errAMF0Truncated
		}
		count := order.Uint32(b[*off : *off+4])
		*off += 4
		arr := make([]interface{}, 0, count)
		for i := uint32(0); i < count; i++ {
			v, err := decodeAMF0Value(b, off)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	default:
		return nil, errAMF0Truncated
	}
}

func decodeAMF0String(b []byte, off *int) (string, error) {
	if *off+2 > len(b) {
		return "", errAMF0Truncated
	}
	n := int(order.Uint16(b[*off : *off+2]))
	*off += 2
	if *off+n > len(b) {
		return "", errAMF0Truncated
	}
	s := string(b[*off : *off+n])
	*off += n
	return s, nil
}

func decodeAMF0Object(b []byte, off *int) (map[string]interface{}, error) {
	result := make(map[string]interface{})
	for {
		if *off+2 > len(b) {
			return result, nil
		}
		keyLen := int(order.Uint16(b[*off : *off+2]))
		*off += 2
		if keyLen == 0 {
			// Object-end marker is a zero-length key followed by 0x09.
			if *off < len(b) && b[*off] == amf0ObjectEnd {
				*off++
			}
			return result, nil
		}
		if *off+keyLen > len(b) {
			return result, nil
		}
		key := string(b[*off : *off+keyLen])
		*off += keyLen

		v, err := decodeAMF0Value(b, off)
		if err != nil {
			return result, nil
		}
		result[key] = v
	}
}
