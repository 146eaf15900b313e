package envfile

import (
	"strings"
	"testing"
)

func TestParse_Basic(t *testing.T) {
	input := `
# a comment
export FOO=bar
BAZ="quoted value"
QUX='single quoted'
RAW=plain #trailing comment
EMPTY_LINE_ABOVE=1
`
	env, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"FOO":              "bar",
		"BAZ":              "quoted value",
		"QUX":              "single quoted",
		"RAW":              "plain",
		"EMPTY_LINE_ABOVE": "1",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("env[%q] = %q, want %q", k, env[k], v)
		}
	}
}

func TestParse_InvalidKeyIgnored(t *testing.T) {
	env, err := Parse(strings.NewReader("1BAD=x\nGOOD=y"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := env["1BAD"]; ok {
		t.Error("invalid key 1BAD should be ignored")
	}
	if env["GOOD"] != "y" {
		t.Error("valid key GOOD should parse")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	env := Load("/nonexistent/path/.env")
	if len(env) != 0 {
		t.Errorf("Load missing file: got %v, want empty", env)
	}
}

func TestMerge_ProcessEnvWinsOverDotenv(t *testing.T) {
	dotenv := map[string]string{"KEY": "from-dotenv"}
	processEnv := []string{"KEY=from-process"}
	merged := Merge(dotenv, processEnv, nil)

	found := false
	for _, kv := range merged {
		if kv == "KEY=from-process" {
			found = true
		}
		if kv == "KEY=from-dotenv" {
			t.Error("dotenv value should not win over process env")
		}
	}
	if !found {
		t.Error("expected KEY=from-process in merged env")
	}
}

func TestMerge_ExtraWinsOverAll(t *testing.T) {
	merged := Merge(map[string]string{"KEY": "a"}, []string{"KEY=b"}, map[string]string{"KEY": "c"})
	found := false
	for _, kv := range merged {
		if kv == "KEY=c" {
			found = true
		}
	}
	if !found {
		t.Error("expected extra value to win")
	}
}
