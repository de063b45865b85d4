package randutil

import (
	"math/rand"
	"sync"
	"time"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Int63n returns a non-negative pseudo-random 63-bit integer.
func Int63n() int64 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Int63()
}

// Uint64n returns a pseudo-random 64-bit integer.
func Uint64n() uint64 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Uint64()
}

// StringN returns a pseudo-random alphanumeric string of length n.
func StringN(n int) string {
	mu.Lock()
	defer mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return string(b)
}
