// Package flow holds the transient per-user conversation state.
//
// Each multi-turn interaction is its own state type, so two flows can
// never collide on a shared field or step name: a handler that expects
// an OrderPlacement simply does not match a user who is inside
// ProductCreation. State lives in memory only and is lost on restart.
package flow

import "sync"

// State is the tagged union of all conversation flows.
type State interface {
	flowState()
}

// OrderStep enumerates the order placement sub-states.
type OrderStep int

const (
	StepSelectSize OrderStep = iota
	StepCity
	StepAddress
	StepFullName
	StepPhone
	StepDelivery
	StepCustomDelivery
	StepPaymentProof
	StepReview
	StepEditing
)

// OrderPlacement walks a buyer from size selection to confirmation.
type OrderPlacement struct {
	Step        OrderStep
	ProductID   int64
	Size        string
	City        string
	Address     string
	FullName    string
	Phone       string
	Delivery    string
	ProofFileID string
	Editing     string // field being replaced while Step == StepEditing
}

func (*OrderPlacement) flowState() {}

// ProductStep enumerates the admin product creation sub-states.
type ProductStep int

const (
	ProductStepPhoto ProductStep = iota
	ProductStepName
	ProductStepDescription
	ProductStepPrice
	ProductStepExclusive
	ProductStepCoinPrice
	ProductStepSizes
)

// ProductCreation collects a new catalog product from an admin.
type ProductCreation struct {
	Step        ProductStep
	PhotoID     string
	Name        string
	Description string
	Price       float64
	IsExclusive bool
	CoinPrice   int64
	Sizes       map[string]int // size -> initial quantity
}

func (*ProductCreation) flowState() {}

// ReviewAuthoring collects a review text and optional photo.
type ReviewAuthoring struct {
	AwaitingPhoto bool
	Text          string
	PhotoID       string
}

func (*ReviewAuthoring) flowState() {}

// PostCreation collects a channel post from an admin.
type PostCreation struct {
	AwaitingPhoto bool
	Text          string
	PhotoID       string
}

func (*PostCreation) flowState() {}

// RejectionPrompt waits for an admin to type a rejection reason.
// It is scoped to the admin's user id and never touches buyer state.
type RejectionPrompt struct {
	OrderID int64
}

func (*RejectionPrompt) flowState() {}

type entry struct {
	state   State
	cleanup func()
}

// Store maps user ids to their current flow state.
type Store struct {
	mu      sync.Mutex
	entries map[int64]entry
	userMus map[int64]*sync.Mutex
}

// NewStore creates an empty conversation state store.
func NewStore() *Store {
	return &Store{
		entries: make(map[int64]entry),
		userMus: make(map[int64]*sync.Mutex),
	}
}

// Get returns the user's current flow state, or nil.
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[userID].state
}

// Set replaces the user's flow state. Any previous state is cleared
// first so its cleanup runs.
func (s *Store) Set(userID int64, state State) {
	s.SetWithCleanup(userID, state, nil)
}

// SetWithCleanup replaces the user's flow state and registers a cleanup
// to run when the flow is cleared (e.g. deleting a buffered photo).
func (s *Store) SetWithCleanup(userID int64, state State, cleanup func()) {
	s.mu.Lock()
	prev := s.entries[userID]
	s.entries[userID] = entry{state: state, cleanup: cleanup}
	s.mu.Unlock()

	if prev.cleanup != nil {
		prev.cleanup()
	}
}

// Clear discards the user's flow state and releases its resources.
// Safe to call when no flow is in progress.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	prev := s.entries[userID]
	delete(s.entries, userID)
	s.mu.Unlock()

	if prev.cleanup != nil {
		prev.cleanup()
	}
}

// Serialize acquires the per-user mutex and returns its release func.
// The bot dispatch loop wraps every update in it, so two racing
// messages from the same user (a double-tap) are handled one at a time
// while different users stay fully concurrent.
func (s *Store) Serialize(userID int64) func() {
	s.mu.Lock()
	mu, ok := s.userMus[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userMus[userID] = mu
	}
	s.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
