package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fxsettle/pkg/domain"
)

func TestNew(t *testing.T) {
	t.Run("drops blanks and repeats, keeps order", func(t *testing.T) {
		r, err := New([]string{"O2", " O1 ", "", "O2", "O3"})
		require.NoError(t, err)
		assert.Equal(t, []id.AccountID{"O2", "O1", "O3"}, r.Members())
		assert.Equal(t, 3, r.Len())
	})

	t.Run("rejects malformed identities", func(t *testing.T) {
		_, err := New([]string{"O1", "bad id"})
		require.Error(t, err)
	})
}

func TestContains(t *testing.T) {
	r := MustNew("O1", "O2")

	assert.True(t, r.Contains("O1"))
	assert.False(t, r.Contains("o1"), "membership is exact")
	assert.False(t, r.Contains(""))
	assert.False(t, Roster{}.Contains("O1"))
}

func TestMembersIsACopy(t *testing.T) {
	r := MustNew("O1", "O2")
	m := r.Members()
	m[0] = "attacker"
	assert.True(t, r.Contains("O1"))
	assert.False(t, r.Contains("attacker"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("oracles:\n  - O1\n  - O2\n  - O1\n"), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []id.AccountID{"O1", "O2"}, r.Members())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
