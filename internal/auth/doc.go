// Package auth signs scoring-service login messages with an account's
// Ethereum key.
//
// Signatures follow EIP-191 personal_sign: the message is prefixed with
// "\x19Ethereum Signed Message:\n<len>", hashed with Keccak-256, and the
// recovery id is shifted to 27/28.
package auth
