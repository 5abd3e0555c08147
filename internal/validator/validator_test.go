package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	ClientID string `json:"clientId" validate:"max=8"`
	Priority int    `json:"priority" validate:"min=0,max=1000"`
}

func TestValidateRequestPasses(t *testing.T) {
	errs := ValidateRequest(&sampleRequest{ClientID: "alice", Priority: 10})
	assert.Nil(t, errs)
}

func TestValidateRequestReportsFieldErrors(t *testing.T) {
	errs := ValidateRequest(&sampleRequest{ClientID: "far-too-long-label", Priority: -1})
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "clientid")
	assert.Contains(t, errs, "priority")
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(&sampleRequest{}))
	assert.Error(t, ValidateStruct(&sampleRequest{Priority: 2000}))
}
