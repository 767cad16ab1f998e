package node

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node/ledger"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoDeployer      = errors.New("no airdrop deployer key configured")
	ErrNotDeployable   = errors.New("only thirdweb airdrops are deployed by the daemon")
	ErrAlreadyDeployed = errors.New("airdrop contract already deployed")
	ErrNoFactory       = errors.New("airdrop factory and implementation must be configured")
)

type AirdropParams struct {
	Kind       merkle.Encoding
	ChainID    uint64
	Token      common.Address
	Recipients []merkle.Recipient
	Season     string
	// ExpiresAt zero means the claim window never closes
	ExpiresAt time.Time
	// TreeURL is where the tree document is hosted for claimers, optional
	TreeURL string
}

// CreateAirdrop builds the merkle tree of the recipients and stores the
// airdrop. Nothing is sent on chain.
func (d *Scoutd) CreateAirdrop(ctx context.Context, p AirdropParams) (ledger.Airdrop, error) {
	if _, ok := config.ChainByID(p.ChainID); !ok {
		return ledger.Airdrop{}, fmt.Errorf("%w %d", ErrUnknownChain, p.ChainID)
	}
	tree, err := merkle.NewTree(p.Kind, p.Recipients)
	if err != nil {
		return ledger.Airdrop{}, err
	}
	doc, err := json.Marshal(tree)
	if err != nil {
		return ledger.Airdrop{}, err
	}

	a := ledger.Airdrop{
		Kind:      p.Kind,
		ChainID:   p.ChainID,
		Token:     p.Token,
		Root:      tree.Root(),
		TreeURL:   p.TreeURL,
		TreeJSON:  doc,
		Season:    p.Season,
		CreatedAt: d.now().Unix(),
	}
	if !p.ExpiresAt.IsZero() {
		a.ExpiresAt = p.ExpiresAt.Unix()
	}

	tx, err := d.Ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Airdrop{}, err
	}
	defer ledger.Rollback(tx)

	if _, err := d.Ledger.InsertAirdrop(tx, &a, tree.Recipients()); err != nil {
		return ledger.Airdrop{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Airdrop{}, err
	}

	log.WithFields(log.Fields{
		"id":         a.ID,
		"root":       a.Root.Hex(),
		"recipients": tree.Len(),
		"total":      tree.Total().String(),
	}).Info("airdrop created")
	return a, nil
}

func (d *Scoutd) Airdrop(ctx context.Context, id int64) (ledger.Airdrop, error) {
	return d.Ledger.SelectAirdrop(nil, id)
}

// AirdropTree is the document claimers build their proofs from.
func (d *Scoutd) AirdropTree(ctx context.Context, id int64) (merkle.Document, error) {
	a, err := d.Ledger.SelectAirdrop(nil, id)
	if err != nil {
		return merkle.Document{}, err
	}
	if len(a.TreeJSON) == 0 {
		tree, err := d.Trees.Tree(ctx, a)
		if err != nil {
			return merkle.Document{}, err
		}
		return tree.Document(), nil
	}

	// rendered from the ledger, the document may not be hosted yet
	tree, err := merkle.ParseDocument(a.TreeJSON)
	if err != nil {
		return merkle.Document{}, err
	}
	if tree.Root() != a.Root {
		return merkle.Document{}, fmt.Errorf("%w: airdrop %d committed to %s, stored tree has %s", merkle.ErrRootMismatch, id, a.Root.Hex(), tree.Root().Hex())
	}
	return tree.Document(), nil
}

// DeployAirdropContract clones thirdweb's Airdrop for the airdrop through the
// factory, sets the token's merkle root and stores the clone's address. The
// contract has no expiry, the claim window is enforced by eligibility.
func (d *Scoutd) DeployAirdropContract(ctx context.Context, id int64) (common.Address, error) {
	a, err := d.Ledger.SelectAirdrop(nil, id)
	if err != nil {
		return common.Address{}, err
	}
	if a.Deployed() {
		return common.Address{}, fmt.Errorf("%w at %s", ErrAlreadyDeployed, a.Contract.Hex())
	}
	if a.Kind != merkle.EncodingThirdweb {
		return common.Address{}, ErrNotDeployable
	}

	keyHex := strings.TrimPrefix(strings.TrimSpace(d.Config.GetString(config.AirdropDeployerKey)), "0x")
	if keyHex == "" {
		return common.Address{}, ErrNoDeployer
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid deployer key: %w", err)
	}

	factoryHex, implHex := d.Config.GetString(config.AirdropFactory), d.Config.GetString(config.AirdropImplementation)
	if !common.IsHexAddress(factoryHex) || !common.IsHexAddress(implHex) {
		return common.Address{}, ErrNoFactory
	}
	factory, impl := common.HexToAddress(factoryHex), common.HexToAddress(implHex)

	deployer := crypto.PubkeyToAddress(key.PublicKey)
	admin := deployer
	if adminHex := d.Config.GetString(config.AirdropAdmin); common.IsHexAddress(adminHex) {
		admin = common.HexToAddress(adminHex)
	}

	client, err := d.Chains.Get(a.ChainID)
	if err != nil {
		return common.Address{}, err
	}
	dLog := log.WithField("airdrop", id)

	// the deployer owns the clone until the root is set
	initData, err := thirdwebAirdropABI.Pack("initialize", deployer, "")
	if err != nil {
		return common.Address{}, err
	}
	salt := crypto.Keccak256Hash(a.Root.Bytes(), big.NewInt(a.ID).Bytes())
	data, err := cloneFactoryABI.Pack("deployProxyByImplementation", impl, initData, [32]byte(salt))
	if err != nil {
		return common.Address{}, err
	}
	receipt, err := d.sendAndWait(ctx, client, key, factory, data)
	if err != nil {
		return common.Address{}, err
	}

	event := cloneFactoryABI.Events["ProxyDeployed"]
	var proxy common.Address
	for _, lg := range receipt.Logs {
		if lg.Address != factory || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		out, err := cloneFactoryABI.Unpack("ProxyDeployed", lg.Data)
		if err != nil {
			return common.Address{}, err
		}
		proxy = out[0].(common.Address)
		break
	}
	if proxy == (common.Address{}) {
		return common.Address{}, fmt.Errorf("deployment %s emitted no proxy address", receipt.TxHash.Hex())
	}
	dLog = dLog.WithField("contract", proxy.Hex())
	dLog.Info("airdrop proxy deployed")

	// A proxy without its root is not stored. It can be finished by hand and
	// attached.
	data, err = thirdwebAirdropABI.Pack("setMerkleRoot", a.Token, [32]byte(a.Root), false)
	if err != nil {
		return common.Address{}, err
	}
	if _, err := d.sendAndWait(ctx, client, key, proxy, data); err != nil {
		return common.Address{}, fmt.Errorf("set merkle root on %s: %w", proxy.Hex(), err)
	}

	if admin != deployer {
		data, err = thirdwebAirdropABI.Pack("setOwner", admin)
		if err != nil {
			return common.Address{}, err
		}
		if _, err := d.sendAndWait(ctx, client, key, proxy, data); err != nil {
			return common.Address{}, fmt.Errorf("hand %s to %s: %w", proxy.Hex(), admin.Hex(), err)
		}
	}

	if err := d.Ledger.SetAirdropContract(nil, id, proxy); err != nil {
		return common.Address{}, err
	}
	dLog.WithField("owner", admin.Hex()).Info("airdrop contract deployed")
	return proxy, nil
}

func (d *Scoutd) sendAndWait(ctx context.Context, client ChainWriter, key *ecdsa.PrivateKey, to common.Address, data []byte) (*types.Receipt, error) {
	hash, err := sendTransaction(ctx, client, key, to, data)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"to": to.Hex(), "tx": hash.Hex()}).Debug("transaction sent")
	return waitReceipt(ctx, client, hash, d.settlementTimeout())
}

// AttachAirdropContract records a claim contract that was deployed elsewhere,
// such as a Sablier campaign. The contract must commit to the airdrop's root.
func (d *Scoutd) AttachAirdropContract(ctx context.Context, id int64, contract common.Address) error {
	a, err := d.Ledger.SelectAirdrop(nil, id)
	if err != nil {
		return err
	}
	if a.Deployed() {
		return fmt.Errorf("%w at %s", ErrAlreadyDeployed, a.Contract.Hex())
	}
	client, err := d.Chains.Get(a.ChainID)
	if err != nil {
		return err
	}

	a.Contract = contract
	root, err := onChainRoot(ctx, client, a)
	if err != nil {
		return err
	}
	if root != a.Root {
		return fmt.Errorf("%w: contract has %s, airdrop %d has %s", merkle.ErrRootMismatch, root.Hex(), id, a.Root.Hex())
	}
	return d.Ledger.SetAirdropContract(nil, id, contract)
}
