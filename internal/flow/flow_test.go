package flow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIsolatesUsers(t *testing.T) {
	s := NewStore()

	s.Set(1, &OrderPlacement{Step: StepCity, ProductID: 10})
	s.Set(2, &ProductCreation{Step: ProductStepName})

	st1, ok := s.Get(1).(*OrderPlacement)
	require.True(t, ok)
	assert.Equal(t, int64(10), st1.ProductID)

	_, ok = s.Get(2).(*OrderPlacement)
	assert.False(t, ok, "user 2 is in a different flow")

	assert.Nil(t, s.Get(3))
}

func TestSetReplacesFlowCompletely(t *testing.T) {
	s := NewStore()

	s.Set(1, &OrderPlacement{Step: StepPhone, City: "Москва"})
	s.Set(1, &ReviewAuthoring{})

	_, ok := s.Get(1).(*ReviewAuthoring)
	require.True(t, ok)
	_, ok = s.Get(1).(*OrderPlacement)
	assert.False(t, ok, "no field of the old flow may leak into the new one")
}

func TestClearRunsCleanup(t *testing.T) {
	s := NewStore()

	cleaned := 0
	s.SetWithCleanup(1, &OrderPlacement{}, func() { cleaned++ })
	s.Clear(1)

	assert.Equal(t, 1, cleaned)
	assert.Nil(t, s.Get(1))

	// Clearing an absent flow is a no-op
	s.Clear(1)
	assert.Equal(t, 1, cleaned)
}

func TestSetRunsPreviousCleanup(t *testing.T) {
	s := NewStore()

	cleaned := 0
	s.SetWithCleanup(1, &PostCreation{}, func() { cleaned++ })
	s.Set(1, &ReviewAuthoring{})

	assert.Equal(t, 1, cleaned, "replacing a flow must release its resources")
}

func TestSerializeOrdersRacingUpdates(t *testing.T) {
	s := NewStore()

	var order []int
	var wg sync.WaitGroup
	unlock := s.Serialize(1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		u := s.Serialize(1)
		order = append(order, 2)
		u()
	}()

	order = append(order, 1)
	unlock()
	wg.Wait()

	assert.Equal(t, []int{1, 2}, order)
}

func TestSerializeDifferentUsersDoNotBlock(t *testing.T) {
	s := NewStore()

	unlock1 := s.Serialize(1)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2 := s.Serialize(2)
		unlock2()
		close(done)
	}()
	<-done
}
