package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

func TestExitForResult(t *testing.T) {
	assert.Equal(t, common.ExitOK, exitForResult(entity.DocumentResult{Status: constants.DocumentSuccess}))
	assert.Equal(t, common.ExitOK, exitForResult(entity.DocumentResult{Status: constants.DocumentPartial}))
	assert.Equal(t, common.ExitExtraction, exitForResult(entity.DocumentResult{
		Status: constants.DocumentFailure,
		Errors: []entity.ErrorDetail{{Code: common.CodeTransientBackend}, {Code: common.CodeAuthentication}},
	}))
	assert.Equal(t, common.ExitConfiguration, exitForResult(entity.DocumentResult{
		Status: constants.DocumentFailure,
		Errors: []entity.ErrorDetail{{Code: common.CodeAuthentication}},
	}))
	assert.Equal(t, common.ExitExtraction, exitForResult(entity.DocumentResult{Status: constants.DocumentFailure}))
}
