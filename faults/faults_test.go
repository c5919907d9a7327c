package faults_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zkpermit/zkpermit-go/faults"
)

func TestDerivedSentinelsMatchTheirBaseClass(t *testing.T) {
	assert.ErrorIs(t, faults.ErrInvalidRole, faults.ErrValidation)
	assert.ErrorIs(t, faults.ErrDuplicateRequest, faults.ErrDuplicate)
	assert.ErrorIs(t, faults.ErrDuplicateKey, faults.ErrDuplicate)
	assert.ErrorIs(t, faults.ErrNoChallenge, faults.ErrAuth)
	assert.ErrorIs(t, faults.ErrSignatureMismatch, faults.ErrAuth)
	assert.ErrorIs(t, faults.ErrRoleConflict, faults.ErrConflict)
}

func TestWrappedSentinelsStillMatch(t *testing.T) {
	err := fmt.Errorf("%w: user 0xabc", faults.ErrNotFound)
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestBenign(t *testing.T) {
	assert.True(t, faults.Benign(faults.ErrStaleReference))
	assert.True(t, faults.Benign(faults.ErrDuplicateKey))
	assert.True(t, faults.Benign(fmt.Errorf("%w: user", faults.ErrNotFound)))
	assert.True(t, faults.Benign(faults.ErrRoleConflict))
	assert.False(t, faults.Benign(errors.New("io timeout")))
	assert.False(t, faults.Benign(faults.ErrAuth))
}
