// Package kv implements a workflow engine storage backend using a key-value interface.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/utils/kv"
	"github.com/formflow/formflow/workflow"
)

const keyPfxActive = "active."

// KV is a workflow engine storage backend using a key-value interface.
// Atomicity is provided by a single mutex so the backend is only safe
// for a single process.
type KV struct {
	mu          sync.RWMutex
	subStore    kv.Bucket
	instStore   kv.Bucket
	histStore   kv.Bucket
	activeStore kv.TraversingBucket
	subscrStore kv.TraversingBucket
}

// New creates a new key-value workflow engine storage backend.
func New(subStore kv.Bucket, instStore kv.Bucket, histStore kv.Bucket, activeStore kv.TraversingBucket, subscrStore kv.TraversingBucket) *KV {
	return &KV{
		subStore:    subStore,
		instStore:   instStore,
		histStore:   histStore,
		activeStore: activeStore,
		subscrStore: subscrStore,
	}
}

// getJSON retrieves k from b into v.
// Missing keys are reported as storage.ErrNotFound.
func getJSON(ctx context.Context, b kv.Bucket, k string, v interface{}) error {
	err := kv.GetJSON(ctx, b, k, v)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, k)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// appendHistory appends h to the JSON array of history for its instance.
func (s *KV) appendHistory(ctx context.Context, h *workflow.HistoryEntry) error {
	var history []*workflow.HistoryEntry
	if err := getJSON(ctx, s.histStore, h.InstanceID, &history); err != nil && !isNotFound(err) {
		return err
	}
	history = append(history, h)
	return kv.SetJSON(ctx, s.histStore, h.InstanceID, history)
}

// markActive maintains the index of active instances.
func (s *KV) markActive(ctx context.Context, inst *workflow.Instance) error {
	if inst.Active {
		return s.activeStore.Set(ctx, keyPfxActive+inst.ID, []byte(inst.ID))
	}
	return s.activeStore.Delete(ctx, keyPfxActive+inst.ID)
}

// CreateSubmission implements the storage interface method.
func (s *KV) CreateSubmission(ctx context.Context, c *storage.Creation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if found, err := s.subStore.Has(ctx, c.Submission.ID); err != nil {
		return fmt.Errorf("checking submission: %w", err)
	} else if found {
		return fmt.Errorf("%w: submission %s", storage.ErrAlreadyExists, c.Submission.ID)
	}
	if c.Instance != nil {
		if found, err := s.instStore.Has(ctx, c.Instance.ID); err != nil {
			return fmt.Errorf("checking instance: %w", err)
		} else if found {
			return fmt.Errorf("%w: instance %s", storage.ErrAlreadyExists, c.Instance.ID)
		}
		if err := kv.SetJSON(ctx, s.instStore, c.Instance.ID, c.Instance); err != nil {
			return fmt.Errorf("setting instance: %w", err)
		}
		if err := s.markActive(ctx, c.Instance); err != nil {
			return fmt.Errorf("indexing instance: %w", err)
		}
		if err := s.appendHistory(ctx, c.History); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
	}
	if err := kv.SetJSON(ctx, s.subStore, c.Submission.ID, c.Submission); err != nil {
		return fmt.Errorf("setting submission: %w", err)
	}
	return nil
}

// RetrieveSubmission implements the storage interface method.
func (s *KV) RetrieveSubmission(ctx context.Context, id string) (*workflow.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := new(workflow.Submission)
	if err := getJSON(ctx, s.subStore, id, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RetrieveInstance implements the storage interface method.
func (s *KV) RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst := new(workflow.Instance)
	if err := getJSON(ctx, s.instStore, id, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// StoreTransition implements the storage interface method.
func (s *KV) StoreTransition(ctx context.Context, t *storage.Transition) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := new(workflow.Instance)
	if err := getJSON(ctx, s.instStore, t.Instance.ID, stored); err != nil {
		return err
	}
	if stored.Version != t.Instance.Version-1 {
		return fmt.Errorf("%w: instance %s at version %d", storage.ErrConflict, stored.ID, stored.Version)
	}
	if err := kv.SetJSON(ctx, s.instStore, t.Instance.ID, t.Instance); err != nil {
		return fmt.Errorf("setting instance: %w", err)
	}
	if err := s.markActive(ctx, t.Instance); err != nil {
		return fmt.Errorf("indexing instance: %w", err)
	}
	if err := kv.SetJSON(ctx, s.subStore, t.Submission.ID, t.Submission); err != nil {
		return fmt.Errorf("setting submission: %w", err)
	}
	if err := s.appendHistory(ctx, t.History); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

// RetrieveHistory implements the storage interface method.
func (s *KV) RetrieveHistory(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found, err := s.instStore.Has(ctx, instanceID); err != nil {
		return nil, err
	} else if !found {
		return nil, fmt.Errorf("%w: instance %s", storage.ErrNotFound, instanceID)
	}
	var history []*workflow.HistoryEntry
	if err := getJSON(ctx, s.histStore, instanceID, &history); err != nil && !isNotFound(err) {
		return nil, err
	}
	return history, nil
}

// RetrieveActiveInstances implements the storage interface method.
func (s *KV) RetrieveActiveInstances(ctx context.Context) ([]*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := kv.KeysWithPrefix(ctx, s.activeStore, keyPfxActive)
	if err != nil {
		return nil, err
	}
	insts := make([]*workflow.Instance, 0, len(ids))
	for _, id := range ids {
		inst := new(workflow.Instance)
		if err := getJSON(ctx, s.instStore, id, inst); err != nil {
			return insts, fmt.Errorf("retrieving active instance: %w", err)
		}
		insts = append(insts, inst)
	}
	return insts, nil
}
