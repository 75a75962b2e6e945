package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Empty(t, DedupeAndTrim([]string{}))

	cases := map[string]struct {
		in   []string
		want []string
	}{
		"roster with padding and repeats": {
			in:   []string{"  oracle-a ", "oracle-b", "oracle-a", "", "  ", "oracle-b"},
			want: []string{"oracle-a", "oracle-b"},
		},
		"first occurrence wins the position": {
			in:   []string{"o3", "o1", "o2", "o1", "o3"},
			want: []string{"o3", "o1", "o2"},
		},
		"case is significant": {
			in:   []string{"Oracle", "oracle", "ORACLE"},
			want: []string{"Oracle", "oracle", "ORACLE"},
		},
		"blanks only": {
			in:   []string{"", " ", "\t"},
			want: []string{},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DedupeAndTrim(tc.in))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"oracle-1", "oracle-2"}, SplitList("oracle-1, oracle-2,,oracle-1"))
	assert.Equal(t, []string{"O1", "o1"}, SplitList("O1,o1"))
	assert.Equal(t, []string{"localhost:9092", "broker-2:9092"}, SplitList("localhost:9092 ,broker-2:9092"))
}
