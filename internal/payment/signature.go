package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// Signer computes the signature the gateway attaches to a notification.
type Signer func(orderID, statusCode, grossAmount, serverKey string) string

// SHA512Signature is Midtrans' notification signature:
// hex(sha512(order_id + status_code + gross_amount + server_key)).
func SHA512Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares in constant time.
func VerifySignature(sign Signer, orderID, statusCode, grossAmount, serverKey, got string) bool {
	want := sign(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
