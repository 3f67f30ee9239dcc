package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/folder-search/pkg/pathstore"
)

var (
	bucketRoots = []byte("roots") // RootHash -> RootState
)

// State implements Store.State.
func (s *store) State(root string) (RootState, bool, error) {
	hash := pathstore.Hash(pathstore.MustNormalize(root))

	var (
		state RootState
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRoots).Get([]byte(hash))
		if data == nil {
			return nil
		}

		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("failed to unmarshal root state: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return RootState{}, false, err
	}

	return state, found, nil
}

// PutState implements Store.PutState.
func (s *store) PutState(state RootState) error {
	normalized, err := pathstore.Normalize(state.Path)
	if err != nil {
		return err
	}
	state.Path = normalized
	state.Hash = pathstore.Hash(normalized)

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal root state: %w", err)
		}

		if putErr := tx.Bucket(bucketRoots).Put([]byte(state.Hash), data); putErr != nil {
			return fmt.Errorf("%w: failed to store root state: %v", ErrStorageFailure, putErr)
		}
		return nil
	})
}

// States implements Store.States.
func (s *store) States() ([]RootState, error) {
	var states []RootState

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).ForEach(func(_, v []byte) error {
			var state RootState
			if err := json.Unmarshal(v, &state); err != nil {
				s.logger.Warn("skipping unreadable root state", "error", err)
				return nil
			}
			states = append(states, state)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return states, nil
}

// deleteState removes the record for hash.
func (s *store) deleteState(hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).Delete([]byte(hash))
	})
}
