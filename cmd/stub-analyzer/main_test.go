package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze(t *testing.T) {
	clean := analyze("contract A { function f() public {} }")
	assert.Equal(t, "ALLOW", clean["decision"])
	assert.Empty(t, clean["findings"])

	risky := analyze("function kill() { require(tx.origin == owner); selfdestruct(owner); }")
	assert.Equal(t, "BLOCK", risky["decision"])
	assert.Equal(t, "Critical", risky["overallRisk"])
	assert.Len(t, risky["findings"], 2)
	assert.Equal(t, "2 finding(s)", risky["summary"])
}
