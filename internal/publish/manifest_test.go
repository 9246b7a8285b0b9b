package publish

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseManifestKeepsExtraKeys(t *testing.T) {
	m, err := ParseManifest([]byte(`{"name":" widgets ","version":"1.0.0","tags":["ui"],"engine":{"min":"2"}}`))
	require.NoError(t, err)
	require.Equal(t, "widgets", m.Name)
	require.Equal(t, []string{"ui"}, m.Tags)
	require.Contains(t, m.Extra, "engine")

	raw, err := m.Encode()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "widgets", decoded["name"])
	require.Equal(t, map[string]any{"min": "2"}, decoded["engine"])
}

func TestParseManifestRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"not object":      `[]`,
		"missing version": `{"name":"widgets"}`,
		"blank name":      `{"name":"  ","version":"1.0.0"}`,
		"wrong type":      `{"name":"widgets","version":"1.0.0","dependencies":[1]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(raw))
			require.ErrorIs(t, err, ErrInvalidManifest)
		})
	}

	_, err := ParseManifest(nil)
	require.ErrorIs(t, err, ErrMissingMetadata)
}

func TestNameValidator(t *testing.T) {
	v := NewNameValidator([]string{"Corp_Internal"})

	require.NoError(t, v.Validate("widgets"))
	require.NoError(t, v.Validate("@acme/tools"))
	require.NoError(t, v.Validate("@acme/admin"))

	require.ErrorIs(t, v.Validate(""), ErrInvalidName)
	require.ErrorIs(t, v.Validate("Widgets"), ErrInvalidName)
	require.ErrorIs(t, v.Validate("@acme"), ErrInvalidName)
	require.ErrorIs(t, v.Validate("@/tools"), ErrInvalidName)
	require.ErrorIs(t, v.Validate("@acme/Tools"), ErrInvalidName)
	require.ErrorIs(t, v.Validate("admin"), ErrReservedName)
	require.ErrorIs(t, v.Validate("corp-internal"), ErrReservedName)

	require.Equal(t, "mypack", FoldName("My-Pack"))
	require.Equal(t, "mypack", FoldName("my_pack."))
}
