package lapsv2

import "fmt"

// DecodeError is a malformed or unexpected structure at any decode stage.
// The pipeline aborts; no partial output is produced.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RPCError is a key-service connect, bind, or call failure. The pipeline
// aborts; transient failures are the caller's to retry.
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("key service %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// CryptoError is a KEK/CEK derivation or decryption failure (wrong key,
// corrupted ciphertext). The pipeline aborts.
type CryptoError struct {
	Stage string
	Err   error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }
