package exception

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yanun0323/errors"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		desc     string
		err      error
		expected Class
	}{
		{"nil", nil, ClassNone},
		{"bare unknown order", ErrUnknownOrder, ClassUnknownOrder},
		{"wrapped invalid transition", errors.Wrap(ErrInvalidTransition, "apply").With("id", "a-1"), ClassInvalidTransition},
		{"escalation inside action failure", errors.Wrap(errors.Wrap(ErrHedgeEscalation, "escalate"), ErrSchedulerActionFailure.Error()), ClassHedgeEscalation},
		{"foreign", errors.New("boom"), ClassOther},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.err))
		})
	}
}
