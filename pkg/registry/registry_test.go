package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remote(key string) ToolSpec {
	return ToolSpec{Key: key, Kind: KindRemote, Remote: &RemoteSpec{URLTemplate: "https://api.example.com/" + key + "?q="}}
}

func local(key, command string) ToolSpec {
	return ToolSpec{Key: key, Kind: KindLocal, Local: &LocalSpec{Command: command, Args: []string{TargetPlaceholder}}}
}

func TestNew(t *testing.T) {
	t.Run("valid registry", func(t *testing.T) {
		r, err := New(
			[]ToolSpec{remote("whois"), remote("dnslookup"), local("local_ping", "ping")},
			[]Group{{Name: "basic", Keys: []string{"whois", "dnslookup"}}},
			"basic",
		)
		require.NoError(t, err)
		assert.Equal(t, 3, r.Len())
		assert.Equal(t, "basic", r.DefaultGroup())
	})

	tests := []struct {
		name    string
		specs   []ToolSpec
		groups  []Group
		def     string
		wantErr error
	}{
		{
			name:    "duplicate tool key",
			specs:   []ToolSpec{remote("whois"), local("whois", "whois")},
			groups:  []Group{{Name: "basic", Keys: []string{"whois"}}},
			def:     "basic",
			wantErr: ErrDuplicateKey,
		},
		{
			name:    "group collides with tool",
			specs:   []ToolSpec{remote("whois")},
			groups:  []Group{{Name: "whois", Keys: []string{"whois"}}},
			def:     "whois",
			wantErr: ErrDuplicateKey,
		},
		{
			name:    "unknown group member",
			specs:   []ToolSpec{remote("whois")},
			groups:  []Group{{Name: "basic", Keys: []string{"whois", "ghost"}}},
			def:     "basic",
			wantErr: ErrUnknownMember,
		},
		{
			name:    "nested group",
			specs:   []ToolSpec{remote("whois")},
			groups:  []Group{{Name: "basic", Keys: []string{"whois"}}, {Name: "all", Keys: []string{"basic"}}},
			def:     "basic",
			wantErr: ErrUnknownMember,
		},
		{
			name:    "upper-case key",
			specs:   []ToolSpec{remote("WHOIS")},
			groups:  []Group{{Name: "basic", Keys: []string{"WHOIS"}}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "remote without url",
			specs:   []ToolSpec{{Key: "whois", Kind: KindRemote, Remote: &RemoteSpec{}}},
			groups:  []Group{{Name: "basic", Keys: []string{"whois"}}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "local without command",
			specs:   []ToolSpec{{Key: "nmap", Kind: KindLocal, Local: &LocalSpec{}}},
			groups:  []Group{{Name: "basic", Keys: []string{"nmap"}}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "both configs",
			specs:   []ToolSpec{{Key: "x", Kind: KindLocal, Local: &LocalSpec{Command: "x"}, Remote: &RemoteSpec{URLTemplate: "https://x"}}},
			groups:  []Group{{Name: "basic", Keys: []string{"x"}}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "unsupported method",
			specs:   []ToolSpec{{Key: "x", Kind: KindRemote, Remote: &RemoteSpec{URLTemplate: "https://x/", Method: "DELETE"}}},
			groups:  []Group{{Name: "basic", Keys: []string{"x"}}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "unknown format",
			specs:   []ToolSpec{{Key: "x", Kind: KindRemote, Remote: &RemoteSpec{URLTemplate: "https://x/", Format: "xml"}}},
			groups:  []Group{{Name: "basic", Keys: []string{"x"}}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "unknown kind",
			specs:   []ToolSpec{{Key: "x", Kind: "carrier-pigeon"}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "missing default group",
			specs:   []ToolSpec{remote("whois")},
			groups:  []Group{{Name: "basic", Keys: []string{"whois"}}},
			def:     "dns",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "empty group",
			specs:   []ToolSpec{remote("whois")},
			groups:  []Group{{Name: "basic"}},
			def:     "basic",
			wantErr: ErrInvalidSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs, tt.groups, tt.def)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistryReads(t *testing.T) {
	r, err := New(
		[]ToolSpec{remote("whois"), remote("dnslookup"), local("nmap", "nmap"), local("local_ping", "ping")},
		[]Group{
			{Name: "basic", Keys: []string{"whois", "dnslookup"}},
			{Name: "local", Keys: []string{"nmap", "local_ping"}},
		},
		"basic",
	)
	require.NoError(t, err)

	spec, ok := r.Lookup("nmap")
	require.True(t, ok)
	assert.Equal(t, KindLocal, spec.Kind)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	members, ok := r.ExpandGroup("local")
	require.True(t, ok)
	assert.Equal(t, []string{"nmap", "local_ping"}, members)

	// callers cannot mutate the registry through the returned slice
	members[0] = "tampered"
	again, _ := r.ExpandGroup("local")
	assert.Equal(t, "nmap", again[0])

	_, ok = r.ExpandGroup("whois")
	assert.False(t, ok)
	assert.True(t, r.IsGroup("basic"))
	assert.False(t, r.IsGroup("whois"))

	assert.Equal(t, []string{"dnslookup", "local_ping", "nmap", "whois"}, r.AllKeys())
	assert.Equal(t, []string{"dnslookup", "whois"}, r.Keys(KindRemote))
	assert.Equal(t, []string{"local_ping", "nmap"}, r.Keys(KindLocal))

	groups := r.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "basic", groups[0].Name)
	assert.Equal(t, "local", groups[1].Name)

	specs := r.Specs()
	require.Len(t, specs, 4)
	assert.Equal(t, "dnslookup", specs[0].Key)
}

func TestDefault(t *testing.T) {
	r := Default()

	assert.Equal(t, DefaultGroupName, r.DefaultGroup())

	basic, ok := r.ExpandGroup("basic")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"whois", "dnslookup", "hostsearch"}, basic)

	whois, ok := r.Lookup("whois")
	require.True(t, ok)
	assert.Equal(t, "https://api.hackertarget.com/whois/?q=", whois.Remote.URLTemplate)
	assert.Contains(t, whois.Remote.ErrorMarkers, "error input invalid")

	nmap, ok := r.Lookup("nmap")
	require.True(t, ok)
	assert.Equal(t, KindLocal, nmap.Kind)
	assert.Contains(t, nmap.Local.Args, TargetPlaceholder)

	full, _ := r.ExpandGroup("full")
	assert.ElementsMatch(t, r.Keys(KindRemote), full)

	localGroup, _ := r.ExpandGroup("local")
	assert.ElementsMatch(t, r.Keys(KindLocal), localGroup)

	crtsh, ok := r.Lookup("crtsh")
	require.True(t, ok)
	assert.Equal(t, FormatCrtsh, crtsh.Remote.Format)
	assert.Contains(t, crtsh.Remote.URLTemplate, "%25."+TargetPlaceholder)

	methods, ok := r.Lookup("methods")
	require.True(t, ok)
	assert.Equal(t, "OPTIONS", methods.Remote.Method)
	assert.Equal(t, FormatAllowHeader, methods.Remote.Format)

	for _, key := range []string{"cms", "analyse", "extract"} {
		spec, ok := r.Lookup(key)
		require.True(t, ok, key)
		assert.Contains(t, spec.Remote.URLTemplate, "url="+TargetPlaceholder, key)
	}

	subdomains, ok := r.ExpandGroup("subdomains")
	require.True(t, ok)
	assert.Equal(t, []string{"hostsearch", "crtsh"}, subdomains)
}
