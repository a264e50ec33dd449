// Package wmerrors declares the sentinel error kinds the watermark core
// must distinguish (spec.md §7). They are declared in one place so every
// component that can raise them, and every caller that wants to
// errors.Is-match them, shares the same identity.
package wmerrors

import "errors"

var (
	// ErrInvalidInput covers a non-3D image, dimensions too small for two
	// DWT levels, or alpha outside (0, 1].
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidKey covers malformed DER or a wrong key role. A mismatched
	// key pair on verify is reported as a false result, not as this error.
	ErrInvalidKey = errors.New("invalid key")

	// ErrWatermarkTooLong is returned when the requested watermark length
	// exceeds the available signature bits.
	ErrWatermarkTooLong = errors.New("watermark too long for signature")

	// ErrInsufficientCapacity is returned when L+2 exceeds the length of
	// either interleaved diagonal.
	ErrInsufficientCapacity = errors.New("insufficient embedding capacity")

	// ErrShapeMismatch names the case where the extracted and ground-truth
	// tensors have different shapes. IsSimilar does not return it: it
	// reports a shape mismatch as (false, 0).
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrTransformFailure covers NaN/underflow detected in the transform
	// pipeline rather than letting it silently propagate.
	ErrTransformFailure = errors.New("transform failure")
)
