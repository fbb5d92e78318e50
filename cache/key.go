package cache

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// maxKeyDepth bounds slice nesting in arguments. A slice that contains
// itself would otherwise never finish encoding.
const maxKeyDepth = 64

// Key identifies the record and in-flight call for one argument list. It is
// the msgpack encoding of the arguments, so it is binary and not meant for
// display; use String for logs.
type Key string

// Fingerprint returns the xxhash of the key.
func (k Key) Fingerprint() uint64 {
	return xxhash.Sum64String(string(k))
}

// String returns the key fingerprint as 16 hex digits.
func (k Key) String() string {
	return fmt.Sprintf("%016x", k.Fingerprint())
}

// EncodeKey derives the Key for an argument list. Supported arguments are
// bools, any integer or float kind, strings and slices or arrays of those,
// nested up to 64 deep. Numbers are compared by value, so int(3), uint8(3)
// and 3.0 produce the same key.
func EncodeKey(args ...any) (Key, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	if err := enc.EncodeArrayLen(len(args)); err != nil {
		return "", err
	}
	for i, arg := range args {
		if err := encodeArg(enc, arg, strconv.Itoa(i)); err != nil {
			return "", err
		}
	}
	return Key(buf.String()), nil
}

func encodeArg(enc *msgpack.Encoder, arg any, path string) error {
	switch v := arg.(type) {
	case string:
		return enc.EncodeString(v)
	case bool:
		return enc.EncodeBool(v)
	case int:
		return encodeInt(enc, int64(v))
	case int64:
		return encodeInt(enc, v)
	case float64:
		return encodeFloat(enc, v)
	case nil:
		return errors.Wrapf(ErrUnsupportedArgument, "argument %s is nil", path)
	}
	return encodeValue(enc, reflect.ValueOf(arg), path, 0)
}

func encodeValue(enc *msgpack.Encoder, v reflect.Value, path string, depth int) error {
	switch v.Kind() {
	case reflect.Bool:
		return enc.EncodeBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return encodeInt(enc, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return enc.EncodeUint(v.Uint())
	case reflect.Float32, reflect.Float64:
		return encodeFloat(enc, v.Float())
	case reflect.String:
		return enc.EncodeString(v.String())
	case reflect.Slice, reflect.Array:
		if depth >= maxKeyDepth {
			return errors.Wrapf(ErrUnsupportedArgument, "argument %s is nested more than %d deep", path, maxKeyDepth)
		}
		n := v.Len()
		if err := enc.EncodeArrayLen(n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := encodeValue(enc, v.Index(i), path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Interface:
		if v.IsNil() {
			return errors.Wrapf(ErrUnsupportedArgument, "argument %s is nil", path)
		}
		return encodeValue(enc, v.Elem(), path, depth)
	case reflect.Invalid:
		return errors.Wrapf(ErrUnsupportedArgument, "argument %s is nil", path)
	}
	return errors.Wrapf(ErrUnsupportedArgument, "argument %s has type %s", path, v.Type())
}

func encodeInt(enc *msgpack.Encoder, n int64) error {
	if n >= 0 {
		return enc.EncodeUint(uint64(n))
	}
	return enc.EncodeInt(n)
}

// encodeFloat writes integral floats as integers so 3.0 and 3 share a key.
func encodeFloat(enc *msgpack.Encoder, f float64) error {
	switch {
	case math.IsNaN(f):
		return enc.EncodeFloat64(math.NaN())
	case math.IsInf(f, 0) || f != math.Trunc(f):
		return enc.EncodeFloat64(f)
	case f >= 0 && f < math.MaxUint64:
		return enc.EncodeUint(uint64(f))
	case f < 0 && f >= math.MinInt64:
		return enc.EncodeInt(int64(f))
	}
	return enc.EncodeFloat64(f)
}
