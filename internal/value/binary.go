package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrCorruptCodec indicates the binary stream did not match the expected
// tagged layout. The caller may recover, but the stream in question must
// be treated as unrecoverable.
var ErrCorruptCodec = errors.New("value: corrupt codec")

const (
	tagNull uint8 = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagObject
	tagArray
)

// Encode writes the canonical binary encoding of v to w. Object fields
// are written in ascending key order, so equal Values encode to the same
// bytes.
func Encode(w io.Writer, v Value) error {
	switch v.kind {
	case KindNull:
		return writeTag(w, tagNull)
	case KindBool:
		if err := writeTag(w, tagBool); err != nil {
			return err
		}
		var b uint8
		if v.b {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case KindInt:
		if err := writeTag(w, tagInt); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.i)
	case KindFloat:
		if err := writeTag(w, tagFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.f)
	case KindString:
		if err := writeTag(w, tagString); err != nil {
			return err
		}
		return writeString(w, v.s)
	case KindObject:
		if err := writeTag(w, tagObject); err != nil {
			return err
		}
		return encodeObject(w, v.obj)
	case KindArray:
		if err := writeTag(w, tagArray); err != nil {
			return err
		}
		return encodeArray(w, v.arr)
	default:
		return fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

// EncodeFields writes an object payload (entry count + key/tagged-value
// pairs) without the leading object tag. The snapshot codec does not use
// it; snapshots write each document with Encode, tag included.
func EncodeFields(w io.Writer, fields map[string]Value) error {
	return encodeObject(w, fields)
}

func encodeObject(w io.Writer, fields map[string]Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(fields))); err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := fields[k]
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := Encode(w, f); err != nil {
			return err
		}
	}
	return nil
}

func encodeArray(w io.Writer, items []Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := Encode(w, item); err != nil {
			return err
		}
	}
	return nil
}

func writeTag(w io.Writer, tag uint8) error {
	return binary.Write(w, binary.LittleEndian, tag)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// Decode reads one canonical-binary Value from r.
func Decode(r io.Reader) (Value, error) {
	tag, err := readTag(r)
	if err != nil {
		return Value{}, err
	}
	return decodeTagged(r, tag)
}

func decodeTagged(r io.Reader, tag uint8) (Value, error) {
	switch tag {
	case tagNull:
		return Null(), nil
	case tagBool:
		var b uint8
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return Value{}, corrupt(err)
		}
		return Bool(b != 0), nil
	case tagInt:
		var i int64
		if err := binary.Read(r, binary.LittleEndian, &i); err != nil {
			return Value{}, corrupt(err)
		}
		return Int(i), nil
	case tagFloat:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return Value{}, corrupt(err)
		}
		return Float(f), nil
	case tagString:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case tagObject:
		obj, err := decodeObject(r)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindObject, obj: obj}, nil
	case tagArray:
		arr, err := decodeArray(r)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindArray, arr: arr}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown tag %d", ErrCorruptCodec, tag)
	}
}

// DecodeFields reads an object payload (entry count + key/tagged-value
// pairs) without a leading object tag. The counterpart to EncodeFields.
func DecodeFields(r io.Reader) (map[string]Value, error) {
	return decodeObject(r)
}

func decodeObject(r io.Reader) (map[string]Value, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, corrupt(err)
	}
	fields := make(map[string]Value, n)
	for i := uint64(0); i < n; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		tag, err := readTag(r)
		if err != nil {
			return nil, err
		}
		val, err := decodeTagged(r, tag)
		if err != nil {
			return nil, err
		}
		fields[key] = val
	}
	return fields, nil
}

func decodeArray(r io.Reader) ([]Value, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, corrupt(err)
	}
	items := make([]Value, 0, n)
	for i := uint64(0); i < n; i++ {
		tag, err := readTag(r)
		if err != nil {
			return nil, err
		}
		val, err := decodeTagged(r, tag)
		if err != nil {
			return nil, err
		}
		items = append(items, val)
	}
	return items, nil
}

func readTag(r io.Reader) (uint8, error) {
	var tag uint8
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return 0, corrupt(err)
	}
	return tag, nil
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", corrupt(err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", corrupt(err)
	}
	return string(buf), nil
}

func corrupt(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrCorruptCodec, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("%w: %v", ErrCorruptCodec, err)
}
