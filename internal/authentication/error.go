package authentication

import (
	"fmt"
	"unicode"
)

// Code identifies the kind of failure reported by an Error.
type Code int

const (
	CodeKeyFormat Code = iota + 1
	CodeEntropy
	CodeSignature
	CodeInvalidPublicKey
)

var codeNames = map[Code]string{
	CodeKeyFormat:        "KEY_FORMAT",
	CodeEntropy:          "ENTROPY",
	CodeSignature:        "SIGNATURE",
	CodeInvalidPublicKey: "INVALID_PUBLIC_KEY",
}

// String returns a CamelCase name for code, e.g. "KeyFormat".
func (c Code) String() string {
	allCaps, ok := codeNames[c]
	if !ok {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	camelCase := make([]rune, 0, len(allCaps))
	lowerCaseNext := false
	for _, b := range allCaps {
		if b == '_' {
			lowerCaseNext = false
		} else {
			if lowerCaseNext {
				camelCase = append(camelCase, unicode.ToLower(b))
			} else {
				camelCase = append(camelCase, b)
				lowerCaseNext = true
			}
		}
	}
	return string(camelCase)
}

// Error represents a failure in key handling or signing. Errors with the same Code match under
// errors.Is, so callers can compare against the sentinels below.
type Error struct {
	Code Code
	Info string
	Err  error
}

var (
	// ErrKeyFormat indicates persisted key material is malformed or uses an unsupported layout.
	ErrKeyFormat = &Error{Code: CodeKeyFormat}
	// ErrEntropy indicates the random source failed while generating a key.
	ErrEntropy = &Error{Code: CodeEntropy}
	// ErrSignature indicates the key could not produce a signature.
	ErrSignature = &Error{Code: CodeSignature}
	// ErrInvalidPublicKey indicates an encoded public key is not a point on secp256k1.
	ErrInvalidPublicKey = &Error{Code: CodeInvalidPublicKey}
)

func newError(code Code, info string) error {
	return &Error{Code: code, Info: info}
}

func wrapError(code Code, info string, err error) error {
	return &Error{Code: code, Info: info, Err: err}
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Info != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Info)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
