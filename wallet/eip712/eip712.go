// Package eip712 builds and verifies the EIP-712 digests behind EIP-3009
// TransferWithAuthorization payment authorizations.
package eip712

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// Domain is the EIP-712 domain of the payment asset contract.
type Domain struct {
	Name              string // token name, e.g. "USDC"
	Version           string // token version, e.g. "2"
	ChainID           *big.Int
	VerifyingContract string // hex address "0x..."
}

var (
	// TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)
	transferAuthTypeHash = crypto.Keccak256Hash([]byte("TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))

	// EIP712Domain type string - note ordering matters
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

// keccak256Concat hashes the concatenation of already 32-byte-aligned words,
// matching abi.encode for the EIP-712 struct encodings used here.
func keccak256Concat(parts ...[]byte) common.Hash {
	joined := []byte{}
	for _, p := range parts {
		joined = append(joined, p...)
	}
	return crypto.Keccak256Hash(joined)
}

// padLeft32 returns a 32-byte right-aligned representation of the given big.Int
func padLeft32(i *big.Int) []byte {
	b := i.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// addressTo32 left-pads an address into 32 bytes
func addressTo32(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}

func stringToBig(s string) (*big.Int, error) {
	n := new(big.Int)
	if _, ok := n.SetString(s, 10); !ok {
		return nil, fmt.Errorf("invalid decimal integer string %q", s)
	}
	return n, nil
}

// HexToBytes32 converts hex (with/without 0x) to a 32-byte array, as needed
// for the EIP-3009 nonce.
func HexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	hexStr = strings.TrimPrefix(hexStr, "0x")
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, err
	}
	if len(b) > 32 {
		return out, errors.New("nonce longer than 32 bytes")
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// DomainSeparator builds the domainSeparator hash per EIP-712:
// keccak256(abi.encode(domainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
func DomainSeparator(d Domain) (common.Hash, error) {
	if d.Name == "" || d.Version == "" || d.ChainID == nil || d.VerifyingContract == "" {
		return common.Hash{}, errors.New("incomplete domain")
	}

	parts := [][]byte{
		domainTypeHash.Bytes(),
		crypto.Keccak256Hash([]byte(d.Name)).Bytes(),
		crypto.Keccak256Hash([]byte(d.Version)).Bytes(),
		padLeft32(d.ChainID),
		addressTo32(common.HexToAddress(d.VerifyingContract)),
	}
	return keccak256Concat(parts...), nil
}

// hashTransferWithAuthorization computes the EIP-3009 struct hash.
func hashTransferWithAuthorization(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte) common.Hash {
	parts := [][]byte{
		transferAuthTypeHash.Bytes(),
		addressTo32(from),
		addressTo32(to),
		padLeft32(value),
		padLeft32(validAfter),
		padLeft32(validBefore),
		nonce[:],
	}
	return keccak256Concat(parts...)
}

// AuthorizationDigest builds the final EIP-712 digest
// keccak256("\x19\x01" || domainSeparator || structHash) for an EIP-3009
// authorization. Values are decimal strings as carried in the wire types.
func AuthorizationDigest(domain Domain, auth types.EVMAuthorization) (common.Hash, error) {
	domainSep, err := DomainSeparator(domain)
	if err != nil {
		return common.Hash{}, err
	}

	value, err := stringToBig(auth.Value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("value: %w", err)
	}
	validAfter, err := stringToBig(auth.ValidAfter)
	if err != nil {
		return common.Hash{}, fmt.Errorf("validAfter: %w", err)
	}
	validBefore, err := stringToBig(auth.ValidBefore)
	if err != nil {
		return common.Hash{}, fmt.Errorf("validBefore: %w", err)
	}
	nonce, err := HexToBytes32(auth.Nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	structHash := hashTransferWithAuthorization(
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value, validAfter, validBefore, nonce,
	)

	prefix := []byte{0x19, 0x01}
	digest := crypto.Keccak256Hash(append(append(prefix, domainSep.Bytes()...), structHash.Bytes()...))
	return digest, nil
}

// TypedData renders the authorization as the apitypes.TypedData document an
// EIP-1193 wallet expects as the second eth_signTypedData_v4 parameter.
func TypedData(domain Domain, auth types.EVMAuthorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// RecoverSigner recovers the address that signed the given digest.
// sig must be 65 bytes (R||S||V); V may be 0/1 or 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("signature must be 65 bytes")
	}

	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("sig to pub failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// SignatureToHex renders a 65-byte signature with V normalized to 27/28, the
// form settlement backends and on-chain verifiers expect.
func SignatureToHex(sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", errors.New("signature must be 65 bytes")
	}
	s := make([]byte, 65)
	copy(s, sig)
	if s[64] < 27 {
		s[64] += 27
	}
	return "0x" + hex.EncodeToString(s), nil
}

// HexToSignature parses a 0x-prefixed 65-byte signature.
func HexToSignature(sigHex string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(b))
	}
	return b, nil
}
