package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// allows a future algorithm migration without ambiguity.
const (
	domainInvocation = "weft/invocation/v1"
	domainCompletion = "weft/completion/v1"
	domainBinding    = "weft/binding/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data). The null byte
// separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID for an invocation.
// Stable across restarts given the same inputs, which is what makes
// replayed dispatches converge instead of duplicating.
func InvocationID(flow, concept, action string, input Record, seq int64) (string, error) {
	obj := Record{
		"flow":    String(flow),
		"concept": String(concept),
		"action":  String(action),
		"input":   input,
		"seq":     Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("invocation id: %w", err)
	}
	return hashWithDomain(domainInvocation, canonical), nil
}

// CompletionID computes the content-addressed ID for a completion.
func CompletionID(concept, action, variant string, output Record, flow string, seq int64) (string, error) {
	obj := Record{
		"concept": String(concept),
		"action":  String(action),
		"variant": String(variant),
		"output":  output,
		"flow":    String(flow),
		"seq":     Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("completion id: %w", err)
	}
	return hashWithDomain(domainCompletion, canonical), nil
}

// BindingHash hashes a binding environment for the at-most-once firing
// key. Equal binding values always produce equal hashes via canonical JSON.
func BindingHash(bindings Record) (string, error) {
	canonical, err := MarshalCanonical(bindings)
	if err != nil {
		return "", fmt.Errorf("binding hash: %w", err)
	}
	return hashWithDomain(domainBinding, canonical), nil
}

// MustInvocationID is InvocationID but panics on error. Test helper.
func MustInvocationID(flow, concept, action string, input Record, seq int64) string {
	id, err := InvocationID(flow, concept, action, input, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// MustCompletionID is CompletionID but panics on error. Test helper.
func MustCompletionID(concept, action, variant string, output Record, flow string, seq int64) string {
	id, err := CompletionID(concept, action, variant, output, flow, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// MustBindingHash is BindingHash but panics on error. Test helper.
func MustBindingHash(bindings Record) string {
	h, err := BindingHash(bindings)
	if err != nil {
		panic(err)
	}
	return h
}
