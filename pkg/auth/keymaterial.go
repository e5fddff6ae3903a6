package auth

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"math/big"
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// KeyTypeEC is the JWK key type for elliptic-curve keys.
const KeyTypeEC = "EC"

// DefaultCurve is assumed for EC keys that omit crv. It is the curve the
// identity provider signs with.
const DefaultCurve = "P-256"

type curveParams struct {
	curve     elliptic.Curve
	validator ecdh.Curve
	algorithm string
	size      int
}

var curves = map[string]curveParams{
	"P-256": {elliptic.P256(), ecdh.P256(), "ES256", 32},
	"P-384": {elliptic.P384(), ecdh.P384(), "ES384", 48},
	"P-521": {elliptic.P521(), ecdh.P521(), "ES512", 66},
}

// ToPublicKey rebuilds the verification key for an elliptic-curve
// [ExternalKey] from its base64url X and Y coordinates.
//
// It fails with sserr.CodeUnsupportedKeyMaterial when the key is not EC,
// names an unknown curve, lacks a coordinate, or does not describe a point
// on its curve. ToPublicKey performs no I/O.
func ToPublicKey(key ExternalKey) (*ecdsa.PublicKey, error) {
	if key.KeyType != KeyTypeEC {
		return nil, unsupportedKey(key, "key type %q is not EC", key.KeyType)
	}
	params, ok := curves[curveName(key)]
	if !ok {
		return nil, unsupportedKey(key, "curve %q is not supported", key.Curve)
	}
	if key.X == "" || key.Y == "" {
		return nil, unsupportedKey(key, "EC key is missing a coordinate")
	}

	x, err := decodeCoordinate(key.X, params.size)
	if err != nil {
		return nil, unsupportedKey(key, "x coordinate: %v", err)
	}
	y, err := decodeCoordinate(key.Y, params.size)
	if err != nil {
		return nil, unsupportedKey(key, "y coordinate: %v", err)
	}

	// crypto/ecdh rejects points that are not on the curve, including the
	// point at infinity.
	point := make([]byte, 0, 1+2*params.size)
	point = append(point, 0x04)
	point = append(point, x...)
	point = append(point, y...)
	if _, err := params.validator.NewPublicKey(point); err != nil {
		return nil, unsupportedKey(key, "point is not on curve %s", curveName(key))
	}

	return &ecdsa.PublicKey{
		Curve: params.curve,
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// AlgorithmForKey returns the JWS algorithm a key is used with: the
// published alg, or the curve's ECDSA algorithm when alg is absent.
func AlgorithmForKey(key ExternalKey) string {
	if key.Algorithm != "" {
		return key.Algorithm
	}
	if params, ok := curves[curveName(key)]; ok {
		return params.algorithm
	}
	return ""
}

func curveName(key ExternalKey) string {
	if key.Curve == "" {
		return DefaultCurve
	}
	return key.Curve
}

// decodeCoordinate decodes an unsigned big-endian coordinate and left-pads
// it to size bytes. Padded base64url is tolerated.
func decodeCoordinate(s string, size int) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, sserr.New(sserr.CodeValidationFormat, "coordinate is empty")
	}
	if len(raw) > size {
		return nil, sserr.Newf(sserr.CodeValidationFormat, "length %d exceeds %d bytes", len(raw), size)
	}
	out := make([]byte, size)
	copy(out[size-len(raw):], raw)
	return out, nil
}

func unsupportedKey(key ExternalKey, format string, args ...any) *sserr.Error {
	return sserr.Newf(sserr.CodeUnsupportedKeyMaterial, "auth: "+format, args...).
		WithDetail("kid", key.KeyID)
}
