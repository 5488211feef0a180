package venue

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// OrderSigner is the narrow cryptographic-signing collaborator the core
// depends on. It is the one seam deliberately kept outside the core
// packages per the purpose/scope section: OrderManager never signs
// anything itself, it only calls this interface.
type OrderSigner interface {
	// Address is the EOA address that signs orders and L1 auth challenges.
	Address() common.Address
	// SignOrder produces the EIP-712 signature hex for a fully-populated
	// SignedOrder (every field except Signature must already be set).
	SignOrder(order types.SignedOrder, exchangeAddress string, chainID *big.Int) (string, error)
	// SignClobAuth produces the EIP-712 signature used to bootstrap L2
	// credentials via L1 authentication.
	SignClobAuth(timestamp string, nonce int, chainID *big.Int) (string, error)
}

// EIP712Signer is the one real implementation of OrderSigner, signing with an
// in-process ECDSA private key exactly as the teacher's Auth.SignTypedData did.
type EIP712Signer struct {
	privateKey *ecdsa.PrivateKey
}

// NewEIP712Signer parses a hex-encoded private key (with or without 0x
// prefix) into a signer.
func NewEIP712Signer(hexKey string) (*EIP712Signer, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &EIP712Signer{privateKey: pk}, nil
}

func (s *EIP712Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

// SignOrder signs the CTF Exchange "Order" EIP-712 typed structure.
func (s *EIP712Signer) SignOrder(order types.SignedOrder, exchangeAddress string, chainID *big.Int) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainId:           (*ethmath.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: exchangeAddress,
	}
	types_ := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Order": {
			{Name: "salt", Type: "uint256"},
			{Name: "maker", Type: "address"},
			{Name: "signer", Type: "address"},
			{Name: "taker", Type: "address"},
			{Name: "tokenId", Type: "uint256"},
			{Name: "makerAmount", Type: "uint256"},
			{Name: "takerAmount", Type: "uint256"},
			{Name: "expiration", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "feeRateBps", Type: "uint256"},
			{Name: "side", Type: "uint8"},
			{Name: "signatureType", Type: "uint8"},
		},
	}

	sideNum := "0"
	if order.Side == types.SELL {
		sideNum = "1"
	}
	message := apitypes.TypedDataMessage{
		"salt":          order.Salt,
		"maker":         order.Maker,
		"signer":        order.Signer,
		"taker":         order.Taker,
		"tokenId":       order.TokenID,
		"makerAmount":   order.MakerAmount.String(),
		"takerAmount":   order.TakerAmount.String(),
		"expiration":    order.Expiration,
		"nonce":         order.Nonce,
		"feeRateBps":    order.FeeRateBps,
		"side":          sideNum,
		"signatureType": fmt.Sprintf("%d", order.SignatureType),
	}

	sig, err := s.sign(domain, types_, message, "Order")
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignClobAuth produces the EIP-712 signature for L1-authenticated
// derive-api-key requests.
func (s *EIP712Signer) SignClobAuth(timestamp string, nonce int, chainID *big.Int) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(chainID)),
	}
	types_ := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"ClobAuth": {
			{Name: "address", Type: "address"},
			{Name: "timestamp", Type: "string"},
			{Name: "nonce", Type: "uint256"},
			{Name: "message", Type: "string"},
		},
	}
	message := apitypes.TypedDataMessage{
		"address":   s.Address().Hex(),
		"timestamp": timestamp,
		"nonce":     fmt.Sprintf("%d", nonce),
		"message":   "This message attests that I control the given wallet",
	}

	sig, err := s.sign(domain, types_, message, "ClobAuth")
	if err != nil {
		return "", fmt.Errorf("sign clob auth: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

func (s *EIP712Signer) sign(domain apitypes.TypedDataDomain, typesDef apitypes.Types, message apitypes.TypedDataMessage, primaryType string) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}

	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
