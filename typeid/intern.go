package typeid

import (
	"reflect"
	"sync"
)

// Token is an opaque, process-stable key for one Go type.
// Token 0 is reserved for void.
type Token uint64

var interned = struct {
	byType map[reflect.Type]Token
	types  []reflect.Type // index = token - 1
	mu     sync.RWMutex
}{
	byType: make(map[reflect.Type]Token),
}

// intern returns the token for t, assigning the next one on first sight.
// Tokens are ordered by first intern.
func intern(t reflect.Type) Token {
	if t == nil {
		return 0
	}

	interned.mu.RLock()
	tok, ok := interned.byType[t]
	interned.mu.RUnlock()
	if ok {
		return tok
	}

	interned.mu.Lock()
	defer interned.mu.Unlock()
	if tok, ok := interned.byType[t]; ok {
		return tok
	}
	interned.types = append(interned.types, t)
	tok = Token(len(interned.types))
	interned.byType[t] = tok
	return tok
}

// TypeOf returns the Go type behind a token, or nil for void and unknown
// tokens.
func TypeOf(tok Token) reflect.Type {
	if tok == 0 {
		return nil
	}
	interned.mu.RLock()
	defer interned.mu.RUnlock()
	if int(tok) > len(interned.types) {
		return nil
	}
	return interned.types[tok-1]
}
