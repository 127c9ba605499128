package util

import (
	"unsafe"
)

// StringFromBytes makes a string backed by a specified []byte.
//
// There is no copying and the resulting string shares the same []byte contents.
//
// The backing slice must not be modified afterwards.
func StringFromBytes(buf []byte) string {
	// code from strings.Builder.String()
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}
