package security_test

import (
	"testing"

	"github.com/copyd/copyd/security"
	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsEmptySources(t *testing.T) {
	err := security.Validate(nil, "/tmp/dest", security.Policy{})
	assert.Error(t, err)
}

func TestValidateRejectsRelativePaths(t *testing.T) {
	err := security.Validate([]string{"relative/path"}, "/tmp/dest", security.Policy{})
	assert.Error(t, err)
}

func TestValidateRejectsTraversal(t *testing.T) {
	err := security.Validate([]string{"/tmp/../etc/passwd"}, "/tmp/dest", security.Policy{})
	assert.Error(t, err)
}

func TestValidateRejectsSameSourceAndDestination(t *testing.T) {
	err := security.Validate([]string{"/tmp/a"}, "/tmp/a", security.Policy{})
	assert.Error(t, err)
}

func TestValidateRejectsDeniedExtension(t *testing.T) {
	policy := security.Policy{DeniedExtensions: []string{".exe"}}
	err := security.Validate([]string{"/tmp/a"}, "/tmp/dest.exe", policy)
	assert.Error(t, err)
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	err := security.Validate([]string{"/tmp/a", "/tmp/b"}, "/tmp/dest", security.Policy{})
	assert.NoError(t, err)
}

func TestCheckSourceSizeEnforcesPolicy(t *testing.T) {
	policy := security.Policy{MaxSourceBytes: 1024}
	assert.NoError(t, security.CheckSourceSize(1024, policy))
	assert.Error(t, security.CheckSourceSize(1025, policy))
	assert.NoError(t, security.CheckSourceSize(1<<40, security.Policy{}))
}
