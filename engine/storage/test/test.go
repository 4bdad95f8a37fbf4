// Package test provides a shared test suite for engine storage backends.
package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/workflow"

	"github.com/google/uuid"
)

func newCreation(withInstance bool) *storage.Creation {
	now := time.Now().UTC().Truncate(time.Second)
	sub := &workflow.Submission{
		ID:          uuid.NewString(),
		FormID:      "expense",
		SubmittedBy: "alice",
		SubmittedAt: now,
		Data:        form.Data{"amount": "300", "type": "expense"},
		Status:      workflow.StatusSubmitted,
	}
	c := &storage.Creation{Submission: sub}
	if !withInstance {
		return c
	}
	inst := &workflow.Instance{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		FormID:       sub.FormID,
		Template: workflow.Template{Name: "t", FormID: "expense", Steps: []workflow.Step{
			{Name: "review", Order: 1, Assignment: workflow.Assignment{Role: "manager"}, Actions: []workflow.Action{{Type: workflow.Approve}}},
		}},
		CurrentStep:  "review",
		Active:       true,
		StartedAt:    now,
		LastActivity: now,
		Version:      1,
	}
	sub.Status = workflow.StatusPending
	sub.InstanceID = inst.ID
	sub.CurrentStep = inst.CurrentStep
	c.Instance = inst
	c.History = &workflow.HistoryEntry{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		Step:       "review",
		Action:     workflow.Start,
		Timestamp:  now,
		DataAfter:  inst.Snapshot(sub.Status),
	}
	return c
}

// nextTransition returns a transition of inst to the next version.
func nextTransition(inst *workflow.Instance, sub *workflow.Submission, terminate bool) *storage.Transition {
	next := *inst
	next.Version++
	next.LastActivity = time.Now().UTC().Truncate(time.Second)
	nextSub := *sub
	if terminate {
		next.Active = false
		next.CurrentStep = ""
		next.CompletedAt = &next.LastActivity
		next.Outcome = workflow.StatusApproved
		nextSub.Status = workflow.StatusApproved
		nextSub.CurrentStep = ""
	}
	return &storage.Transition{
		Instance:   &next,
		Submission: &nextSub,
		History: &workflow.HistoryEntry{
			ID:         uuid.NewString(),
			InstanceID: inst.ID,
			Step:       inst.CurrentStep,
			Action:     workflow.Approve,
			Actor:      "bob",
			Timestamp:  next.LastActivity,
			Comment:    "ok",
			DataBefore: inst.Snapshot(sub.Status),
			DataAfter:  next.Snapshot(nextSub.Status),
		},
	}
}

func activeContains(t *testing.T, s storage.AllStorage, id string) bool {
	t.Helper()
	insts, err := s.RetrieveActiveInstances(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, inst := range insts {
		if inst.ID == id {
			return true
		}
	}
	return false
}

// TestEngineStorage runs the shared suite against a backend.
// Backends may share state between calls of newStorage.
func TestEngineStorage(t *testing.T, newStorage func() storage.AllStorage) {
	s := newStorage()
	ctx := context.Background()

	t.Run("submission_without_workflow", func(t *testing.T) {
		c := newCreation(false)
		if err := s.CreateSubmission(ctx, c); err != nil {
			t.Fatal(err)
		}
		sub, err := s.RetrieveSubmission(ctx, c.Submission.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := sub.Status, workflow.StatusSubmitted; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := sub.Data["amount"], "300"; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := sub.SubmittedAt, c.Submission.SubmittedAt; !have.Equal(want) {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if err = s.CreateSubmission(ctx, c); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Errorf("have: %v, want: %v", err, storage.ErrAlreadyExists)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		if _, err := s.RetrieveSubmission(ctx, uuid.NewString()); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNotFound)
		}
		if _, err := s.RetrieveInstance(ctx, uuid.NewString()); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNotFound)
		}
		if _, err := s.RetrieveHistory(ctx, uuid.NewString()); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNotFound)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if err := s.CreateSubmission(ctx, nil); err == nil {
			t.Error("expected error")
		}
		if err := s.StoreTransition(ctx, nil); err == nil {
			t.Error("expected error")
		}
		c := newCreation(true)
		c.History = nil
		if err := s.CreateSubmission(ctx, c); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		c := newCreation(true)
		if err := s.CreateSubmission(ctx, c); err != nil {
			t.Fatal(err)
		}

		inst, err := s.RetrieveInstance(ctx, c.Instance.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := inst.CurrentStep, "review"; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := inst.Version, int64(1); have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := len(inst.Template.Steps), 1; have != want {
			t.Fatalf("have: %v, want: %v", have, want)
		}
		if !activeContains(t, s, inst.ID) {
			t.Error("instance not active")
		}

		history, err := s.RetrieveHistory(ctx, inst.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(history), 1; have != want {
			t.Fatalf("have: %v, want: %v", have, want)
		}

		tr := nextTransition(inst, c.Submission, false)
		if err = s.StoreTransition(ctx, tr); err != nil {
			t.Fatal(err)
		}

		// the same version again is stale
		if err = s.StoreTransition(ctx, nextTransition(inst, c.Submission, false)); !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("have: %v, want: %v", err, storage.ErrConflict)
		}
		history, err = s.RetrieveHistory(ctx, inst.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(history), 2; have != want {
			t.Fatalf("have: %v, want: %v", have, want)
		}
		if have, want := history[1].ID, tr.History.ID; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := history[1].DataBefore.CurrentStep, "review"; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}

		final := nextTransition(tr.Instance, tr.Submission, true)
		if err = s.StoreTransition(ctx, final); err != nil {
			t.Fatal(err)
		}
		inst, err = s.RetrieveInstance(ctx, inst.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := inst.State(), workflow.Terminated; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if inst.CompletedAt == nil {
			t.Error("completed at not set")
		}
		sub, err := s.RetrieveSubmission(ctx, c.Submission.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := sub.Status, workflow.StatusApproved; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if activeContains(t, s, inst.ID) {
			t.Error("terminated instance still active")
		}
	})

	t.Run("concurrent_transitions", func(t *testing.T) {
		c := newCreation(true)
		if err := s.CreateSubmission(ctx, c); err != nil {
			t.Fatal(err)
		}
		const n = 5
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.StoreTransition(ctx, nextTransition(c.Instance, c.Submission, false))
			}(i)
		}
		wg.Wait()
		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
			} else if !errors.Is(err, storage.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}
		if have, want := ok, 1; have != want {
			t.Errorf("successful transitions have: %v, want: %v", have, want)
		}
		history, err := s.RetrieveHistory(ctx, c.Instance.ID)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(history), 2; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
	})

	t.Run("subscriptions", func(t *testing.T) {
		TestSubscriptionStorage(t, s)
	})
}
