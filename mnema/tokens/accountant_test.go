package tokens

import (
	"testing"

	"github.com/mnema-labs/mnema/mnema/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() config.ModelProfile {
	return config.ModelProfile{
		Provider:        "local",
		ContextWindow:   8192,
		CharsPerToken:   4.0,
		MessageOverhead: 4,
		PromptOverhead:  10,
	}
}

func TestNewAccountantValidProfile(t *testing.T) {
	acct, err := NewAccountant("local-small", validProfile())
	require.NoError(t, err)
	assert.Equal(t, "local-small", acct.ModelID())
	assert.Equal(t, 8192, acct.ContextWindow())
}

func TestNewAccountantRejectsMalformedProfiles(t *testing.T) {
	zeroWindow := validProfile()
	zeroWindow.ContextWindow = 0
	_, err := NewAccountant("m", zeroWindow)
	assert.ErrorIs(t, err, ErrConfiguration)

	badRatio := validProfile()
	badRatio.CharsPerToken = 0
	_, err = NewAccountant("m", badRatio)
	assert.ErrorIs(t, err, ErrConfiguration)

	negOverhead := validProfile()
	negOverhead.MessageOverhead = -1
	_, err = NewAccountant("m", negOverhead)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewAccountant("", validProfile())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCountDeterministic(t *testing.T) {
	acct, err := NewAccountant("local-small", validProfile())
	require.NoError(t, err)

	text := "the quick brown fox jumps over the lazy dog"
	first := acct.Count(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, acct.Count(text))
	}

	assert.Equal(t, 0, acct.Count(""))
	assert.Equal(t, 1, acct.Count("hi"))
	assert.Equal(t, 10, acct.Count("0123456789012345678901234567890123456789"))
}

func TestCountMessagesIncludesOverheads(t *testing.T) {
	acct, err := NewAccountant("local-small", validProfile())
	require.NoError(t, err)

	msgs := []string{"hello there", "general kenobi"}
	want := 10 // prompt overhead
	for _, m := range msgs {
		want += acct.Count(m) + 4
	}
	assert.Equal(t, want, acct.CountMessages(msgs))
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(config.ModelsConfig{Profiles: map[string]config.ModelProfile{
		"local-small": validProfile(),
	}})
	require.NoError(t, err)

	acct, err := reg.ProfileFor("local-small")
	require.NoError(t, err)
	assert.Equal(t, "local-small", acct.ModelID())

	_, err = reg.ProfileFor("unknown-model")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistryFailsOnBadProfile(t *testing.T) {
	bad := validProfile()
	bad.ContextWindow = -5
	_, err := NewRegistry(config.ModelsConfig{Profiles: map[string]config.ModelProfile{
		"ok":  validProfile(),
		"bad": bad,
	}})
	assert.ErrorIs(t, err, ErrConfiguration)
}
