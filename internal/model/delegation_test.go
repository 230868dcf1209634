package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelegationEffectiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name       string
		delegation Delegation
		want       bool
	}{
		{"active open ended", Delegation{Active: true}, true},
		{"inactive", Delegation{Active: false}, false},
		{"inside window", Delegation{Active: true, StartsAt: &past, EndsAt: &future}, true},
		{"before start", Delegation{Active: true, StartsAt: &future}, false},
		{"after end", Delegation{Active: true, EndsAt: &past}, false},
		{"boundary start", Delegation{Active: true, StartsAt: &now}, true},
		{"boundary end", Delegation{Active: true, EndsAt: &now}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.delegation.EffectiveAt(now))
		})
	}
}
