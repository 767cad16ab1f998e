package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Encoding selects how a recipient is hashed into a leaf. The encodings
// match the claim contracts the leaves are verified by.
type Encoding string

const (
	// EncodingThirdweb is keccak256(abi.encodePacked(recipient, amount))
	EncodingThirdweb Encoding = "thirdweb"
	// EncodingSablier is keccak256(bytes.concat(keccak256(abi.encode(index, recipient, amount))))
	EncodingSablier Encoding = "sablier"
)

var (
	ErrEmptyTree         = errors.New("merkle tree needs at least one recipient")
	ErrInvalidAmount     = errors.New("recipient amount must be positive")
	ErrDuplicateAddress  = errors.New("duplicate recipient address")
	ErrInvalidIndex      = errors.New("recipient indices must be sequential from 0")
	ErrIndexOutOfRange   = errors.New("leaf index out of range")
	ErrUnknownEncoding   = errors.New("unknown leaf encoding")
	ErrRootMismatch      = errors.New("merkle root does not match the committed root")
	ErrAmountTooLarge    = errors.New("recipient amount overflows uint256")
	ErrNilRecipientValue = errors.New("recipient amount is missing")
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func (e Encoding) Valid() bool {
	return e == EncodingThirdweb || e == EncodingSablier
}

func ParseEncoding(s string) (Encoding, error) {
	e := Encoding(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
	return e, nil
}

// Recipient is a single entry of an airdrop distribution.
type Recipient struct {
	Index   uint64
	Address common.Address
	Amount  *big.Int
}

// Leaf hashes a recipient with the given encoding.
func Leaf(enc Encoding, r Recipient) (common.Hash, error) {
	if r.Amount == nil {
		return common.Hash{}, ErrNilRecipientValue
	}
	amount := common.LeftPadBytes(r.Amount.Bytes(), 32)
	switch enc {
	case EncodingThirdweb:
		return crypto.Keccak256Hash(r.Address.Bytes(), amount), nil
	case EncodingSablier:
		index := common.LeftPadBytes(new(big.Int).SetUint64(r.Index).Bytes(), 32)
		inner := crypto.Keccak256(index, common.LeftPadBytes(r.Address.Bytes(), 32), amount)
		return crypto.Keccak256Hash(inner), nil
	}
	return common.Hash{}, ErrUnknownEncoding
}

// hashPair is order independent, the same as OpenZeppelin's MerkleProof.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Tree is an in memory merkle tree. layers[0] holds the leaves in recipient
// order, the last layer holds the root.
type Tree struct {
	encoding   Encoding
	recipients []Recipient
	byAddress  map[common.Address]int
	layers     [][]common.Hash
}

// NewTree validates the recipients and builds the tree. The same recipients
// always produce the same root.
func NewTree(enc Encoding, recipients []Recipient) (*Tree, error) {
	if !enc.Valid() {
		return nil, ErrUnknownEncoding
	}
	if len(recipients) == 0 {
		return nil, ErrEmptyTree
	}

	t := &Tree{
		encoding:   enc,
		recipients: make([]Recipient, len(recipients)),
		byAddress:  make(map[common.Address]int, len(recipients)),
	}

	leaves := make([]common.Hash, len(recipients))
	for i, r := range recipients {
		if r.Index != uint64(i) {
			return nil, fmt.Errorf("%w: position %d has index %d", ErrInvalidIndex, i, r.Index)
		}
		if r.Amount == nil {
			return nil, ErrNilRecipientValue
		}
		if r.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, r.Address.Hex())
		}
		if r.Amount.Cmp(maxUint256) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrAmountTooLarge, r.Address.Hex())
		}
		if _, ok := t.byAddress[r.Address]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, r.Address.Hex())
		}

		// Copy the amount so callers cannot mutate a built tree
		t.recipients[i] = Recipient{Index: r.Index, Address: r.Address, Amount: new(big.Int).Set(r.Amount)}
		t.byAddress[r.Address] = i

		leaf, err := Leaf(enc, r)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}

	t.layers = [][]common.Hash{leaves}
	for layer := leaves; len(layer) > 1; {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				// odd node moves up unchanged
				next = append(next, layer[i])
				continue
			}
			next = append(next, hashPair(layer[i], layer[i+1]))
		}
		t.layers = append(t.layers, next)
		layer = next
	}

	return t, nil
}

func (t *Tree) Encoding() Encoding { return t.encoding }

func (t *Tree) Root() common.Hash {
	return t.layers[len(t.layers)-1][0]
}

func (t *Tree) Len() int { return len(t.recipients) }

// Recipients returns a copy of the recipient list in index order.
func (t *Tree) Recipients() []Recipient {
	out := make([]Recipient, len(t.recipients))
	for i, r := range t.recipients {
		out[i] = Recipient{Index: r.Index, Address: r.Address, Amount: new(big.Int).Set(r.Amount)}
	}
	return out
}

// Total is the sum of all recipient amounts.
func (t *Tree) Total() *big.Int {
	total := new(big.Int)
	for _, r := range t.recipients {
		total.Add(total, r.Amount)
	}
	return total
}

// Find looks a recipient up by address.
func (t *Tree) Find(addr common.Address) (Recipient, bool) {
	i, ok := t.byAddress[addr]
	if !ok {
		return Recipient{}, false
	}
	r := t.recipients[i]
	return Recipient{Index: r.Index, Address: r.Address, Amount: new(big.Int).Set(r.Amount)}, true
}

// LeafAt returns the leaf hash of the recipient at index.
func (t *Tree) LeafAt(index uint64) (common.Hash, error) {
	if index >= uint64(len(t.recipients)) {
		return common.Hash{}, ErrIndexOutOfRange
	}
	return t.layers[0][index], nil
}

// Proof returns the sibling hashes from the leaf up to, but excluding, the root.
func (t *Tree) Proof(index uint64) ([]common.Hash, error) {
	if index >= uint64(len(t.recipients)) {
		return nil, ErrIndexOutOfRange
	}

	proof := make([]common.Hash, 0, len(t.layers)-1)
	pos := int(index)
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := pos ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// Verify folds the proof over the leaf and compares the result with root.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	computed := leaf
	for _, p := range proof {
		computed = hashPair(computed, p)
	}
	return computed == root
}

// VerifyRecipient rebuilds the leaf for r and checks it against root.
func VerifyRecipient(enc Encoding, proof []common.Hash, root common.Hash, r Recipient) bool {
	leaf, err := Leaf(enc, r)
	if err != nil {
		return false
	}
	return Verify(proof, root, leaf)
}
