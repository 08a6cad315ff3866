package passphrase

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(env map[string]string, terminal bool, input string) (*Source, *bytes.Buffer) {
	prompt := &bytes.Buffer{}
	reads := 0
	s := &Source{
		envVar: "TEST_TOKEN",
		label:  "admin token",
		lookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		isTerminal: func() bool { return terminal },
		read: func() ([]byte, error) {
			reads++
			if reads > 1 {
				panic("secret read twice")
			}
			return []byte(input), nil
		},
		prompt: prompt,
	}
	return s, prompt
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s, prompt := newTestSource(map[string]string{"TEST_TOKEN": " abc "}, true, "ignored")
	value, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "abc", value)
	require.Empty(t, prompt.String())
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s, _ := newTestSource(map[string]string{"TEST_TOKEN": "  "}, true, "")
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnceOnTerminal(t *testing.T) {
	s, prompt := newTestSource(nil, true, "typed")
	for i := 0; i < 2; i++ {
		value, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "typed", value)
	}
	require.Contains(t, prompt.String(), "Enter admin token")
}

func TestSourceWithoutTerminal(t *testing.T) {
	s, _ := newTestSource(nil, false, "")
	_, err := s.Get()
	require.ErrorContains(t, err, "TEST_TOKEN")
}
