package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildsADevelopmentLogger(t *testing.T) {
	log := New("development")
	assert.NotNil(t, log)
}

func TestNewBuildsAProductionLoggerForOtherEnvironments(t *testing.T) {
	log := New("production")
	assert.NotNil(t, log)
}

func TestLReturnsTheSameInstanceEveryCall(t *testing.T) {
	first := L()
	second := L()
	assert.Same(t, first, second)
}
