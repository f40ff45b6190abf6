package testing

import (
	"math/rand"
	"strings"
)

const charSet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString generates random string of provided length from lower- and uppercase alphabet
func RandString(length int) string {
	var out strings.Builder
	out.Grow(length)
	for i := 0; i < length; i++ {
		out.WriteByte(charSet[rand.Intn(len(charSet))])
	}
	return out.String()
}

// RandUsername generates a username that passes user validation
func RandUsername() string {
	return RandString(10)
}

// RandSession generates an opaque session id the way a browser tab would
func RandSession() string {
	return "session-" + RandString(16)
}
