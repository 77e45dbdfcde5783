package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Tests: Validate
// =============================================================================

func TestValidate(t *testing.T) {
	valid := func() Scenario {
		return Scenario{
			Name:    "multiplayer_join",
			Workers: 3,
			Roles:   map[int]string{0: "server", 1: "client", 2: "client"},
			Scripts: map[string]string{"server": "host.py", "all": "join.py"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Scenario) {},
		},
		{
			name:    "missing name",
			mutate:  func(s *Scenario) { s.Name = "" },
			wantErr: "name",
		},
		{
			name:    "zero workers",
			mutate:  func(s *Scenario) { s.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "role index out of range",
			mutate:  func(s *Scenario) { s.Roles[5] = "client" },
			wantErr: "role index 5",
		},
		{
			name:    "negative role index",
			mutate:  func(s *Scenario) { s.Roles[-1] = "client" },
			wantErr: "role index -1",
		},
		{
			name:    "unknown tag",
			mutate:  func(s *Scenario) { s.Tags = []Tag{"sparkly"} },
			wantErr: "unknown tag",
		},
		{
			name:   "known tags",
			mutate: func(s *Scenario) { s.Tags = []Tag{TagFlaky, TagSlow} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)

			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Tests: Role / Script Resolution
// =============================================================================

func TestRoleFor(t *testing.T) {
	s := Scenario{
		Workers: 3,
		Roles:   map[int]string{0: "server"},
	}

	if got := s.RoleFor(0); got != "server" {
		t.Errorf("RoleFor(0) = %q, want server", got)
	}
	if got := s.RoleFor(1); got != DefaultRole {
		t.Errorf("RoleFor(1) = %q, want %q", got, DefaultRole)
	}
}

func TestScriptFor(t *testing.T) {
	s := Scenario{
		Scripts: map[string]string{
			"server": "host.py",
			"all":    "default.py",
		},
	}

	if got, ok := s.ScriptFor("server"); !ok || got != "host.py" {
		t.Errorf("ScriptFor(server) = %q, %v", got, ok)
	}
	if got, ok := s.ScriptFor("client"); !ok || got != "default.py" {
		t.Errorf("ScriptFor(client) = %q, %v, want fallback to all", got, ok)
	}

	s.Scripts = map[string]string{"server": "host.py"}
	if _, ok := s.ScriptFor("client"); ok {
		t.Error("ScriptFor(client) = ok with no fallback defined")
	}
}

func TestHasTagAndDeadline(t *testing.T) {
	s := Scenario{Tags: []Tag{TagFlaky}}

	if !s.HasTag(TagFlaky) {
		t.Error("HasTag(flaky) = false")
	}
	if s.HasTag(TagSkip) {
		t.Error("HasTag(skip) = true")
	}

	if got := s.DeadlineOrDefault(time.Minute); got != time.Minute {
		t.Errorf("DeadlineOrDefault = %v, want default", got)
	}
	s.Deadline = Duration(30 * time.Second)
	if got := s.DeadlineOrDefault(time.Minute); got != 30*time.Second {
		t.Errorf("DeadlineOrDefault = %v, want 30s", got)
	}
}

// =============================================================================
// Tests: Suite Loading
// =============================================================================

const suiteYAML = `
name: smoke
default_deadline: 2m
scenarios:
  - name: solo_boot
    workers: 1
    scripts:
      all: boot_check.py
    deadline: 90s
    tags: [slow]
  - name: multiplayer_join
    workers: 3
    roles:
      0: server
    scripts:
      server: host.py
      all: join.py
  - name: broken_physics
    workers: 1
    scripts:
      all: physics.py
    tags: [skip]
`

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSuite(t *testing.T) {
	suite, err := LoadSuite(writeSuite(t, suiteYAML))
	if err != nil {
		t.Fatalf("LoadSuite() error: %v", err)
	}

	if suite.Name != "smoke" {
		t.Errorf("Name = %q, want smoke", suite.Name)
	}
	if time.Duration(suite.DefaultDeadline) != 2*time.Minute {
		t.Errorf("DefaultDeadline = %v, want 2m", time.Duration(suite.DefaultDeadline))
	}
	if len(suite.Scenarios) != 3 {
		t.Fatalf("got %d scenarios, want 3", len(suite.Scenarios))
	}

	solo := suite.Scenarios[0]
	if time.Duration(solo.Deadline) != 90*time.Second {
		t.Errorf("solo deadline = %v, want 90s", time.Duration(solo.Deadline))
	}
	if !solo.HasTag(TagSlow) {
		t.Error("solo missing slow tag")
	}

	mp := suite.Scenarios[1]
	if mp.RoleFor(0) != "server" || mp.RoleFor(1) != DefaultRole {
		t.Errorf("role resolution wrong: %v", mp.Roles)
	}
}

func TestLoadSuite_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "empty suite",
			content: "name: empty\nscenarios: []\n",
			want:    "no scenarios",
		},
		{
			name: "invalid scenario",
			content: `
scenarios:
  - name: bad
    workers: 0
`,
			want: "workers",
		},
		{
			name: "duplicate names",
			content: `
scenarios:
  - name: twin
    workers: 1
  - name: twin
    workers: 1
`,
			want: "duplicate",
		},
		{
			name: "bad duration",
			content: `
scenarios:
  - name: slowpoke
    workers: 1
    deadline: ninety seconds
`,
			want: "duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSuite(writeSuite(t, tt.content))
			if err == nil {
				t.Fatal("LoadSuite() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadSuite_MissingFile(t *testing.T) {
	if _, err := LoadSuite("/nonexistent/suite.yaml"); err == nil {
		t.Fatal("LoadSuite() = nil for missing file")
	}
}

func TestRunnable_ExcludesSkipped(t *testing.T) {
	suite, err := LoadSuite(writeSuite(t, suiteYAML))
	if err != nil {
		t.Fatalf("LoadSuite() error: %v", err)
	}

	runnable := suite.Runnable()
	if len(runnable) != 2 {
		t.Fatalf("Runnable() returned %d scenarios, want 2", len(runnable))
	}
	for _, s := range runnable {
		if s.Name == "broken_physics" {
			t.Error("skipped scenario included in Runnable()")
		}
	}
}
