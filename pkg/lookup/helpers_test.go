package lookup

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	testGlobalConfig = "/etc/strata/hiera.yaml"
	testEnvRoot      = "/code/environments/production"
	testModulePath   = "/code/environments/production/modules"
)

// testLoader resolves yaml_data and json_data plus any extra functions and
// counts reads per location.
type testLoader struct {
	reads map[string]int
	extra map[string]Function
}

func newTestLoader() *testLoader {
	return &testLoader{reads: make(map[string]int), extra: make(map[string]Function)}
}

func (l *testLoader) Resolve(name string, _ ProviderKind, _ string) (Function, bool, error) {
	switch name {
	case "yaml_data", "json_data":
		return Function{Name: name, Kind: DataHash, DataHash: l.readData}, true, nil
	}
	f, ok := l.extra[name]
	return f, ok, nil
}

func (l *testLoader) readData(pc ProviderContext, options map[string]any) (any, error) {
	path := options["path"].(string)
	l.reads[path]++
	data, err := afero.ReadFile(pc.Fs(), path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := doc.Decode(&out); err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return out, nil
	}
	return OrderedTable{Data: m, KeyOrder: testKeyOrder(doc.Content[0])}, nil
}

// testKeyOrder returns the document order of the keys of the mappings held
// by top level keys.
func testKeyOrder(n *yaml.Node) map[string][]string {
	order := make(map[string][]string)
	for i := 0; i+1 < len(n.Content); i += 2 {
		v := n.Content[i+1]
		if v.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j < len(v.Content); j += 2 {
			order[n.Content[i].Value] = append(order[n.Content[i].Value], v.Content[j].Value)
		}
	}
	return order
}

type testEnv struct {
	fs      afero.Fs
	loader  *testLoader
	adapter *Adapter
}

// newTestEnv writes files into a memory filesystem and creates an adapter
// over it. Paths are absolute.
func newTestEnv(t *testing.T, files map[string]string, mutate ...func(*AdapterConfig)) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(strings.TrimLeft(content, "\n")), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", path, err)
		}
	}
	if err := fs.MkdirAll(testModulePath, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	loader := newTestLoader()
	logger := zerolog.Nop()
	cfg := AdapterConfig{
		Fs:              fs,
		Logger:          &logger,
		Loader:          loader,
		Modules:         ModulePath{Fs: fs, Dirs: []string{testModulePath}},
		GlobalConfig:    testGlobalConfig,
		EnvironmentRoot: testEnvRoot,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := NewAdapter(cfg)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	return &testEnv{fs: fs, loader: loader, adapter: a}
}

func (e *testEnv) invocation(scope map[string]any, opts ...InvocationOption) *Invocation {
	return e.adapter.NewInvocation(context.Background(), MapScope(scope), opts...)
}

func (e *testEnv) lookup(t *testing.T, key string, scope map[string]any, mergeSpec any) any {
	t.Helper()
	v, err := Lookup(e.invocation(scope), []string{key}, "", nil, false, mergeSpec)
	if err != nil {
		t.Fatalf("Lookup(%q) error = %v", key, err)
	}
	return v
}

const v5Common = `
version: 5
hierarchy:
  - name: Nodes
    path: "nodes/%{certname}.yaml"
  - name: Common
    path: common.yaml
`
