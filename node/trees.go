package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node/ledger"
	log "github.com/sirupsen/logrus"
)

// maxTreeSize bounds a hosted tree document
const maxTreeSize = 64 << 20

// TreeStore loads and caches the merkle tree of every airdrop. A tree is only
// cached once its root matched the root stored with the airdrop.
type TreeStore struct {
	HTTP    *http.Client
	Timeout time.Duration

	mu    sync.Mutex
	trees map[int64]*merkle.Tree
}

func NewTreeStore(timeout time.Duration) *TreeStore {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &TreeStore{
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Timeout: timeout,
		trees:   make(map[int64]*merkle.Tree),
	}
}

// Tree returns the tree of an airdrop. Hosted trees are fetched from the
// airdrop's tree url, otherwise or when the host fails the stored document is
// used.
func (s *TreeStore) Tree(ctx context.Context, a ledger.Airdrop) (*merkle.Tree, error) {
	s.mu.Lock()
	tree, ok := s.trees[a.ID]
	s.mu.Unlock()
	if ok {
		return tree, nil
	}

	var err error
	if a.TreeURL != "" {
		tree, err = s.fetch(ctx, a.TreeURL)
		// a host that is down or missing the document does not stop claims,
		// a document that does not match the root does
		if err != nil && ctx.Err() == nil && len(a.TreeJSON) > 0 && !errors.Is(err, merkle.ErrRootMismatch) {
			log.WithError(err).WithFields(log.Fields{"airdrop": a.ID, "url": a.TreeURL}).Warn("hosted tree unavailable, using the stored tree")
			tree, err = merkle.ParseDocument(a.TreeJSON)
		}
	} else {
		tree, err = merkle.ParseDocument(a.TreeJSON)
	}
	if err != nil {
		return nil, err
	}

	if tree.Root() != a.Root {
		return nil, fmt.Errorf("%w: airdrop %d committed to %s, tree has %s", merkle.ErrRootMismatch, a.ID, a.Root.Hex(), tree.Root().Hex())
	}
	if tree.Encoding() != a.Kind {
		return nil, fmt.Errorf("airdrop %d is %s, tree is encoded for %s", a.ID, a.Kind, tree.Encoding())
	}

	s.mu.Lock()
	s.trees[a.ID] = tree
	s.mu.Unlock()
	return tree, nil
}

// Forget drops a cached tree.
func (s *TreeStore) Forget(id int64) {
	s.mu.Lock()
	delete(s.trees, id)
	s.mu.Unlock()
}

func (s *TreeStore) fetch(ctx context.Context, url string) (*merkle.Tree, error) {
	var tree *merkle.Tree
	err := retry(ctx, newBackOff(250*time.Millisecond, s.Timeout), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return permanent(err)
		}
		resp, err := s.HTTP.Do(req)
		if err != nil {
			log.WithError(err).WithField("url", url).Debug("tree fetch failed")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("tree fetch %s: %s", url, resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return permanent(fmt.Errorf("tree fetch %s: %s", url, resp.Status))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxTreeSize))
		if err != nil {
			return err
		}
		// a malformed or tampered document does not get better by retrying
		tree, err = merkle.ParseDocument(data)
		return permanent(err)
	})
	return tree, err
}
