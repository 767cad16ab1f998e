package merkle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Document is the JSON representation of a tree that is hosted for claimers.
// Proofs are not stored, they are recomputed from the recipient list.
type Document struct {
	Root       common.Hash         `json:"root"`
	Encoding   Encoding            `json:"encoding"`
	Total      string              `json:"total"`
	Recipients []DocumentRecipient `json:"recipients"`
}

type DocumentRecipient struct {
	Index   uint64         `json:"index"`
	Address common.Address `json:"address"`
	Amount  string         `json:"amount"`
}

// Document builds the hosted representation of the tree.
func (t *Tree) Document() Document {
	doc := Document{
		Root:       t.Root(),
		Encoding:   t.encoding,
		Total:      t.Total().String(),
		Recipients: make([]DocumentRecipient, len(t.recipients)),
	}
	for i, r := range t.recipients {
		doc.Recipients[i] = DocumentRecipient{
			Index:   r.Index,
			Address: r.Address,
			Amount:  r.Amount.String(),
		}
	}
	return doc
}

// MarshalJSON renders the tree as its Document.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Document())
}

// Tree rebuilds the tree and checks it against the declared root.
func (d Document) Tree() (*Tree, error) {
	enc, err := ParseEncoding(string(d.Encoding))
	if err != nil {
		return nil, err
	}

	recipients := make([]Recipient, len(d.Recipients))
	for i, r := range d.Recipients {
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("recipient %d: invalid amount %q", i, r.Amount)
		}
		recipients[i] = Recipient{Index: r.Index, Address: r.Address, Amount: amount}
	}

	tree, err := NewTree(enc, recipients)
	if err != nil {
		return nil, err
	}

	if tree.Root() != d.Root {
		return nil, fmt.Errorf("%w: declared %s, computed %s", ErrRootMismatch, d.Root.Hex(), tree.Root().Hex())
	}

	if d.Total != "" && d.Total != tree.Total().String() {
		return nil, fmt.Errorf("declared total %s does not match recipient sum %s", d.Total, tree.Total().String())
	}
	return tree, nil
}

// ParseDocument strictly decodes a hosted tree and verifies its root.
func ParseDocument(data []byte) (*Tree, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()

	var doc Document
	if err := d.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid merkle document: %w", err)
	}
	return doc.Tree()
}
