package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Chain ids the CLOB runs on.
const (
	ChainPolygon = 137
	ChainAmoy    = 80002
)

// clobAuthMessage is the fixed attestation text of the L1 auth struct.
const clobAuthMessage = "This message attests that I control the given wallet"

var (
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// exchangeContracts maps chain id to the CTF exchange and the neg-risk
// exchange contracts that verify order signatures.
var exchangeContracts = map[int][2]common.Address{
	ChainPolygon: {
		common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
	ChainAmoy: {
		common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
		common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
}

// ExchangeContract returns the verifying contract for orders on chainID.
func ExchangeContract(chainID int, negRisk bool) (common.Address, error) {
	c, ok := exchangeContracts[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("crypto/signer: no exchange contract for chain %d", chainID)
	}
	if negRisk {
		return c[1], nil
	}
	return c[0], nil
}

// Order sides and signature types as encoded in the signed struct.
const (
	SideBuy  = 0
	SideSell = 1

	SignatureEOA        = 0
	SignaturePolyProxy  = 1
	SignatureGnosisSafe = 2
)

// OrderPayload is the signed part of a CLOB order. Amounts and ids are
// decimal strings so they survive JSON unchanged.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer holds the wallet key and produces EIP-712 signatures for CLOB auth
// and orders.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	authDomain []byte
}

// NewSigner creates a Signer from a hex secp256k1 key for chainID.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.authDomain = ethcrypto.Keccak256(
		authDomainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		word(big.NewInt(int64(chainID))),
	)
	return s, nil
}

// Address returns the wallet address of the key.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the chain the signer signs for.
func (s *Signer) ChainID() int { return s.chainID }

// SignAuthMessage signs the L1 ClobAuth struct used to derive API
// credentials. It returns a 0x-prefixed 65-byte signature.
func (s *Signer) SignAuthMessage(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(strconv.FormatInt(timestamp, 10))),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	)
	return s.signDigest(typedDataHash(s.authDomain, structHash))
}

// SignOrder signs order against the exchange contract that will verify it.
func (s *Signer) SignOrder(order OrderPayload, exchange common.Address) (string, error) {
	domain := ethcrypto.Keccak256(
		exchangeDomainTypeHash,
		ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		word(big.NewInt(int64(s.chainID))),
		common.LeftPadBytes(exchange.Bytes(), 32),
	)
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(typedDataHash(domain, structHash))
}

// typedDataHash is keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataHash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}

// signDigest returns r || s || v with v in {27, 28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name, value string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	nums := make(map[string][]byte, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.value)
		}
		nums[f.name] = word(n)
	}
	for _, a := range []struct{ name, value string }{
		{"maker", o.Maker}, {"signer", o.Signer}, {"taker", o.Taker},
	} {
		if !common.IsHexAddress(a.value) {
			return nil, fmt.Errorf("crypto/signer: invalid %s address %q", a.name, a.value)
		}
	}

	return ethcrypto.Keccak256(
		orderTypeHash,
		nums["salt"],
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		nums["tokenId"],
		nums["makerAmount"],
		nums["takerAmount"],
		nums["expiration"],
		nums["nonce"],
		nums["feeRateBps"],
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	), nil
}

// word is the 32-byte big-endian ABI encoding of a non-negative n.
func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
