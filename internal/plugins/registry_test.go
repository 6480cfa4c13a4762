package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/txnotify/pkg/api"
)

type fakeLedger struct {
	name   string
	scopes []string
}

func (f *fakeLedger) Name() string             { return f.name }
func (f *fakeLedger) Description() string      { return "fake" }
func (f *fakeLedger) RequiredScopes() []string { return f.scopes }
func (f *fakeLedger) NewTransport(context.Context, Deps) (api.Transport, error) {
	return nil, nil
}

type fakeSource struct {
	name   string
	scopes []string
}

func (f *fakeSource) Name() string             { return f.name }
func (f *fakeSource) Description() string      { return "fake" }
func (f *fakeSource) RequiredScopes() []string { return f.scopes }
func (f *fakeSource) NewSource(context.Context, Deps) (api.Source, error) {
	return nil, nil
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterLedger(&fakeLedger{name: "a"}))
	assert.ErrorContains(t, r.RegisterLedger(&fakeLedger{name: "a"}), `ledger plugin "a" already registered`)
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"webhook", "gmail", "stdin"} {
		require.NoError(t, r.RegisterSource(&fakeSource{name: name}))
	}

	var got []string
	for _, p := range r.ListSources() {
		got = append(got, p.Name())
	}
	assert.Equal(t, []string{"gmail", "stdin", "webhook"}, got)
}

func TestRegistry_GetAllScopes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterSource(&fakeSource{name: "mail", scopes: []string{"modify", "shared"}}))
	require.NoError(t, r.RegisterLedger(&fakeLedger{name: "sheet", scopes: []string{"shared", "sheets"}}))

	scopes, err := r.GetAllScopes("mail", "sheet")
	require.NoError(t, err)
	assert.Equal(t, []string{"modify", "shared", "sheets"}, scopes)

	scopes, err = r.GetAllScopes("", "sheet")
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "sheets"}, scopes)

	_, err = r.GetAllScopes("missing", "sheet")
	assert.Error(t, err)
}
