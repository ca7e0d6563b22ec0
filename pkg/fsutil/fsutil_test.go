package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Owner
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "valid", input: "1000:1000", want: &Owner{UID: 1000, GID: 1000}},
		{name: "root", input: "0:0", want: &Owner{}},
		{name: "missing gid", input: "1000", wantErr: true},
		{name: "too many parts", input: "1:2:3", wantErr: true},
		{name: "non numeric uid", input: "me:1000", wantErr: true},
		{name: "non numeric gid", input: "1000:us", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOwner(tt.input)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOwner_String(t *testing.T) {
	var nilOwner *Owner

	assert.Equal(t, "", nilOwner.String())
	assert.Equal(t, "10:20", (&Owner{UID: 10, GID: 20}).String())
}

func TestOpenAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, MkdirAll(dir, 0o755, nil))

	path := filepath.Join(dir, "results.jsonl")

	for _, line := range []string{"one\n", "two\n"} {
		f, err := OpenAppend(path, nil)
		require.NoError(t, err)

		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}
