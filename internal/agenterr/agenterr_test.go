package agenterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsCauseWhenPresent(t *testing.T) {
	cause := errors.New("boom")
	err := Fetch(cause, "card %d failed", 1712)

	assert.Equal(t, "fetch: card 1712 failed: boom", err.Error())
	assert.Equal(t, KindFetch, err.Kind)
}

func TestErrorFormatsWithoutCause(t *testing.T) {
	err := Config(nil, "missing %s", "SES_FROM_EMAIL")

	assert.Equal(t, "config: missing SES_FROM_EMAIL", err.Error())
}

func TestUnwrapExposesCauseForErrorsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := Store(sentinel, "put failed")

	assert.True(t, errors.Is(err, sentinel))
}

func TestConstructorsTagDistinctKinds(t *testing.T) {
	cases := []struct {
		kind Kind
		err  *Error
	}{
		{KindFetch, Fetch(nil, "x")},
		{KindClassification, Classification(nil, "x")},
		{KindPlan, Plan(nil, "x")},
		{KindSend, Send(nil, "x")},
		{KindStore, Store(nil, "x")},
		{KindTimeout, Timeout(nil, "x")},
		{KindConfig, Config(nil, "x")},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, c.err.Kind)
	}
}
