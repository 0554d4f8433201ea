package capabilities_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/capabilities"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/session"
)

func TestBuiltins(t *testing.T) {
	var u capabilities.UUID
	id := u.V4()
	assert.True(t, u.Valid(id))
	assert.False(t, u.Valid("nope"))
	norm, err := u.Normalize(strings.ToUpper(id))
	require.NoError(t, err)
	assert.Equal(t, id, norm)

	var y capabilities.YAML
	v, err := y.Parse("a: 1\nb: [x, y]\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": []any{"x", "y"}}, v)
	out, err := y.Stringify(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", out)

	var tm capabilities.TOML
	rec, err := tm.Parse("a = 1\n[t]\nb = \"x\"\n")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec["a"])
	assert.Equal(t, map[string]any{"b": "x"}, rec["t"])

	var h capabilities.Hash
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h.Sha256("hello"))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", h.Md5("hello"))

	var b capabilities.Base64
	dec, err := b.Decode(b.Encode("hi there"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", dec)

	md := &capabilities.Markdown{Width: 40}
	plain, err := md.Plain("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, plain, "Title")
	assert.Contains(t, plain, "body")
}

func TestManifest_FromHandler(t *testing.T) {
	tool := &domain.Tool{
		ID: "digest",
		Widgets: []domain.WidgetDefinition{
			{ID: "src", Role: domain.RoleInput, Kind: "textarea"},
			{ID: "sum", Role: domain.RoleOutput, Kind: "text"},
			{ID: "parsed", Role: domain.RoleOutput, Kind: "json"},
		},
		Handler: `async function handler(i) {
			const hash = await requestCapability("hash");
			const yaml = await requestCapability("yaml");
			return { sum: hash.sha256(i.src), parsed: yaml.parse(i.src) };
		}`,
	}
	s, err := session.New(tool, session.Config{Manifest: capabilities.Manifest()})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Edit("src", "hello")
	require.NoError(t, err)
	require.NoError(t, s.Wait(context.Background()))

	sum, _ := s.Get("sum")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	parsed, _ := s.Get("parsed")
	assert.Equal(t, "hello", parsed)
}
