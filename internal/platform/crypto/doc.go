// Package crypto provides authenticated encryption for provider credentials at rest.
//
// A single AES-256-GCM Cipher is built once from the process-wide key and shared
// read-only by every request. Each encryption draws a fresh 16-byte IV; the
// ciphertext, IV and 16-byte authentication tag are stored as separate base64
// fields so a tampered or truncated column is detected before decryption.
package crypto
