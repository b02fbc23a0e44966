package project

// Kind identifies a supported ecosystem.
type Kind string

// Supported ecosystem kinds, in detection priority order.
const (
	KindGo      Kind = "go"
	KindNode    Kind = "node"
	KindRust    Kind = "rust"
	KindPython  Kind = "python"
	KindGeneric Kind = "generic"
)

// Framework describes one test framework an ecosystem may carry: how to spot
// it and how to invoke it.
type Framework struct {
	ID              string
	MarkerGlobs     []string // any match means the framework is configured
	RequiredBinary  string   // must resolve on PATH for the candidate to be usable
	RunCommand      []string
	CoverageCommand []string
}

// Adapter bundles everything downstream components need to know about one
// ecosystem: its marker files, test frameworks, lint check, version files a
// release stamps, and the optional publish command. Adapters are plain data;
// the Detector selects one and every later decision reads from it instead of
// re-branching on the ecosystem.
type Adapter struct {
	Kind         Kind
	Manifest     string   // marker file diagnostic for the ecosystem
	LockFiles    []string // presence raises detection confidence
	BuildTool    string
	Frameworks   []Framework // fixed priority order, first usable match is primary
	LintCommand  []string    // empty means no ecosystem lint check
	VersionFiles []string    // files a release would stamp with the new version
	Publish      []string    // empty means the publish step is skipped
}

// registry is the fixed detection priority order. Order is deliberate and
// stable: when a tree carries markers for several ecosystems, the first entry
// wins every run.
var registry = []Adapter{
	{
		Kind:      KindGo,
		Manifest:  "go.mod",
		LockFiles: []string{"go.sum"},
		BuildTool: "go",
		Frameworks: []Framework{
			{
				ID:              "gotestsum",
				MarkerGlobs:     []string{".gotestsum.yaml", ".gotestsum.yml"},
				RequiredBinary:  "gotestsum",
				RunCommand:      []string{"gotestsum", "--", "./..."},
				CoverageCommand: []string{"gotestsum", "--", "-coverprofile=coverage.out", "./..."},
			},
			{
				ID:              "go-test",
				MarkerGlobs:     []string{"go.mod"},
				RequiredBinary:  "go",
				RunCommand:      []string{"go", "test", "./..."},
				CoverageCommand: []string{"go", "test", "-cover", "./..."},
			},
		},
		LintCommand:  []string{"gofmt", "-l", "."},
		VersionFiles: nil, // Go modules version via tags only
		Publish:      nil, // publishing a Go module is the tag push itself
	},
	{
		Kind:      KindNode,
		Manifest:  "package.json",
		LockFiles: []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml"},
		BuildTool: "npm",
		Frameworks: []Framework{
			{
				ID:              "vitest",
				MarkerGlobs:     []string{"vitest.config.*", "vite.config.*"},
				RequiredBinary:  "npx",
				RunCommand:      []string{"npx", "vitest", "run"},
				CoverageCommand: []string{"npx", "vitest", "run", "--coverage"},
			},
			{
				ID:              "jest",
				MarkerGlobs:     []string{"jest.config.*"},
				RequiredBinary:  "npx",
				RunCommand:      []string{"npx", "jest"},
				CoverageCommand: []string{"npx", "jest", "--coverage"},
			},
			{
				ID:             "npm-test",
				MarkerGlobs:    []string{"package.json"},
				RequiredBinary: "npm",
				RunCommand:     []string{"npm", "test"},
			},
		},
		LintCommand:  []string{"npx", "prettier", "--check", "."},
		VersionFiles: []string{"package.json"},
		Publish:      []string{"npm", "publish"},
	},
	{
		Kind:      KindRust,
		Manifest:  "Cargo.toml",
		LockFiles: []string{"Cargo.lock"},
		BuildTool: "cargo",
		Frameworks: []Framework{
			{
				ID:             "cargo-test",
				MarkerGlobs:    []string{"Cargo.toml"},
				RequiredBinary: "cargo",
				RunCommand:     []string{"cargo", "test"},
			},
		},
		LintCommand:  []string{"cargo", "fmt", "--check"},
		VersionFiles: []string{"Cargo.toml"},
		Publish:      []string{"cargo", "publish"},
	},
	{
		Kind:      KindPython,
		Manifest:  "pyproject.toml",
		LockFiles: []string{"poetry.lock", "uv.lock"},
		BuildTool: "python",
		Frameworks: []Framework{
			{
				ID:              "pytest",
				MarkerGlobs:     []string{"pytest.ini", "conftest.py", "tests/conftest.py"},
				RequiredBinary:  "pytest",
				RunCommand:      []string{"pytest"},
				CoverageCommand: []string{"pytest", "--cov"},
			},
			{
				ID:             "unittest",
				MarkerGlobs:    []string{"pyproject.toml"},
				RequiredBinary: "python3",
				RunCommand:     []string{"python3", "-m", "unittest", "discover"},
			},
		},
		LintCommand:  []string{"ruff", "check", "."},
		VersionFiles: []string{"pyproject.toml"},
		Publish:      []string{"python3", "-m", "build"},
	},
}

// genericAdapter is the fallback when no marker matches. It offers only
// ecosystem-agnostic behavior: commit validation and a generic release tag.
var genericAdapter = Adapter{
	Kind:      KindGeneric,
	BuildTool: "unknown",
}

// Adapters returns the registry in detection priority order.
func Adapters() []Adapter {
	out := make([]Adapter, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the adapter for the given kind, falling back to the generic
// adapter for unknown kinds.
func Lookup(kind Kind) Adapter {
	for _, a := range registry {
		if a.Kind == kind {
			return a
		}
	}
	return genericAdapter
}
