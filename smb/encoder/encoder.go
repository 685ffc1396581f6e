// MIT License
//
// # Copyright (c) 2023 Jimmy Fjällid
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package encoder is the codec facade (spec component C1). It is
// side-effect-free and deterministic: it never signs, encrypts, or charges
// credits, it only turns Go structs into SMB2 wire bytes and back.
//
// Command bodies implement BinaryMarshallable by hand, the same way
// SMB1NegotiateReq/Res do in smb1.go. The SMB2 header and the transform/
// compression headers have their own Encode/Decode functions. For plain
// fixed-layout records without a hand-written method (such as the SMB1
// header in smb1.go) Marshal/Unmarshal fall back to a small reflect-based
// encoder driven by `smb:"fixed:N"` struct tags.
package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Metadata is threaded through a Marshal/Unmarshal call tree so that a
// parent structure can resolve sibling length/offset fields. The core
// engine (smb/mux, smb/negotiate, ...) never needs to populate it; it
// exists for command bodies whose wire layout interleaves a count or byte
// offset with the data it describes (e.g. SecurityBufferOffset/Length in
// SESSION_SETUP).
type Metadata struct {
	Parent     any
	ParentBuf  []byte
	CurrOffset int
	Lens       map[string]int
	Offsets    map[string]int
}

func NewMetadata() *Metadata {
	return &Metadata{
		Lens:    make(map[string]int),
		Offsets: make(map[string]int),
	}
}

// BinaryMarshallable is implemented by every SMB2 command body. Structures
// that are plain fixed-layout records may skip it and rely on the generic
// reflect fallback below.
type BinaryMarshallable interface {
	MarshalBinary(meta *Metadata) ([]byte, error)
	UnmarshalBinary(buf []byte, meta *Metadata) error
}

// Marshal encodes v to wire bytes. If v implements BinaryMarshallable its
// method is used; otherwise v must be a struct (or pointer to struct)
// whose exported fields are fixed-width integers or `smb:"fixed:N"` byte
// arrays, encoded little-endian in field order.
func Marshal(v any) ([]byte, error) {
	if bm, ok := v.(BinaryMarshallable); ok {
		return bm.MarshalBinary(NewMetadata())
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("encoder: cannot marshal %T", v)
	}

	buf := new(bytes.Buffer)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}
		fv := rv.Field(i)
		if err := marshalField(buf, sf, fv); err != nil {
			return nil, fmt.Errorf("encoder: field %s: %w", sf.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func marshalField(buf *bytes.Buffer, sf reflect.StructField, fv reflect.Value) error {
	tag := parseTag(sf.Tag.Get("smb"))

	switch fv.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.Write(buf, binary.LittleEndian, fv.Interface())
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			if tag.fixed > 0 {
				b := make([]byte, tag.fixed)
				reflect.Copy(reflect.ValueOf(b), fv)
				buf.Write(b)
				return nil
			}
			buf.Write(fv.Bytes())
			return nil
		}
		for i := 0; i < fv.Len(); i++ {
			b, err := Marshal(fv.Index(i).Interface())
			if err != nil {
				return err
			}
			buf.Write(b)
		}
		return nil
	case reflect.Array:
		b := make([]byte, fv.Len())
		reflect.Copy(reflect.ValueOf(b), fv)
		buf.Write(b)
		return nil
	case reflect.Struct:
		b, err := Marshal(fv.Interface())
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
}

// Unmarshal decodes buf into v, dispatching to v's BinaryMarshallable
// implementation when present.
func Unmarshal(buf []byte, v any) error {
	if bm, ok := v.(BinaryMarshallable); ok {
		return bm.UnmarshalBinary(buf, NewMetadata())
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("encoder: Unmarshal requires a non-nil pointer, got %T", v)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("encoder: cannot unmarshal into %T", v)
	}

	off := 0
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		fv := rv.Field(i)
		n, err := unmarshalField(buf[off:], sf, fv)
		if err != nil {
			return fmt.Errorf("encoder: field %s: %w", sf.Name, err)
		}
		off += n
	}
	return nil
}

func unmarshalField(buf []byte, sf reflect.StructField, fv reflect.Value) (int, error) {
	tag := parseTag(sf.Tag.Get("smb"))

	switch fv.Kind() {
	case reflect.Uint8:
		if len(buf) < 1 {
			return 0, fmt.Errorf("short buffer")
		}
		fv.SetUint(uint64(buf[0]))
		return 1, nil
	case reflect.Uint16, reflect.Int16:
		if len(buf) < 2 {
			return 0, fmt.Errorf("short buffer")
		}
		setInt(fv, uint64(binary.LittleEndian.Uint16(buf)))
		return 2, nil
	case reflect.Uint32, reflect.Int32:
		if len(buf) < 4 {
			return 0, fmt.Errorf("short buffer")
		}
		setInt(fv, uint64(binary.LittleEndian.Uint32(buf)))
		return 4, nil
	case reflect.Uint64, reflect.Int64:
		if len(buf) < 8 {
			return 0, fmt.Errorf("short buffer")
		}
		setInt(fv, binary.LittleEndian.Uint64(buf))
		return 8, nil
	case reflect.Array:
		n := fv.Len()
		if len(buf) < n {
			return 0, fmt.Errorf("short buffer")
		}
		reflect.Copy(fv, reflect.ValueOf(buf[:n]))
		return n, nil
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 && tag.fixed > 0 {
			if len(buf) < tag.fixed {
				return 0, fmt.Errorf("short buffer")
			}
			b := make([]byte, tag.fixed)
			copy(b, buf[:tag.fixed])
			fv.Set(reflect.ValueOf(b))
			return tag.fixed, nil
		}
		return 0, fmt.Errorf("variable-length slice requires a hand-written UnmarshalBinary")
	default:
		return 0, fmt.Errorf("unsupported kind %s", fv.Kind())
	}
}

func setInt(fv reflect.Value, u uint64) {
	switch fv.Kind() {
	case reflect.Int16, reflect.Int32, reflect.Int64:
		fv.SetInt(int64(u))
	default:
		fv.SetUint(u)
	}
}

type smbTag struct {
	fixed int
	ref   string
}

func parseTag(s string) smbTag {
	var t smbTag
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, ":", 2)
		switch kv[0] {
		case "fixed":
			if len(kv) == 2 {
				n, _ := strconv.Atoi(kv[1])
				t.fixed = n
			}
		case "offset", "len", "count":
			if len(kv) == 2 {
				t.ref = kv[1]
			}
		}
	}
	return t
}
