package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/schema"
)

func TestParseColumnFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    schema.ColumnDefinition
		wantErr bool
	}{
		{input: "label:string", want: schema.ColumnDefinition{Name: "label", Type: "string", Nullable: true}},
		{input: "count:integer:notnull", want: schema.ColumnDefinition{Name: "count", Type: "integer"}},
		{input: "email:string:unique:NOTNULL", want: schema.ColumnDefinition{Name: "email", Type: "string", Unique: true}},
		{input: "label", wantErr: true},
		{input: ":string", wantErr: true},
		{input: "label:", wantErr: true},
		{input: "label:string:primary", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseColumnFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if !errors.Is(err, errs.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseColumnFlag(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildTableSpecMergesFileAndFlags(t *testing.T) {
	file := filepath.Join(t.TempDir(), "spec.json")
	content := `{"columns": [{"name": "label", "type": "string"}, {"name": "count", "type": "integer", "nullable": false}]}`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	spec, err := buildTableSpec("widgets", []string{"active:boolean"}, file)
	require.NoError(t, err)

	assert.Equal(t, "widgets", spec.TableName)
	require.Len(t, spec.Columns, 3)
	assert.Equal(t, "label", spec.Columns[0].Name)
	assert.True(t, spec.Columns[0].Nullable)
	assert.False(t, spec.Columns[1].Nullable)
	assert.Equal(t, "active", spec.Columns[2].Name)

	_, err = buildTableSpec("widgets", nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDecodeRecord(t *testing.T) {
	record, err := decodeRecord(`{"count": 12345678901234, "score": 1.5, "label": "a"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234"), record["count"])
	assert.Equal(t, json.Number("1.5"), record["score"])

	record, err = decodeRecord("-", strings.NewReader(`{"label": "from stdin"}`))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", record["label"])

	for _, bad := range []string{"", "null", "[1, 2]", "{"} {
		_, err := decodeRecord(bad, nil)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput), "input %q: %v", bad, err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errs.Invalid(errs.CodeInvalidColumns, "bad"), 2},
		{errs.TableNotFound("widgets"), 3},
		{errs.TableAlreadyExists("widgets"), 4},
		{errs.Forbidden(errs.CodeRawSQLDisabled, "off"), 5},
		{errors.New("boom"), 1},
	}

	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// cli runs the command line against one SQLite database per test
type cli struct {
	t   *testing.T
	url string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, url: "sqlite://" + filepath.Join(t.TempDir(), "cli.db")}
}

func (c *cli) run(args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	getenv := func(key string) string {
		if key == "DYNTABLE_DATABASE_URL" {
			return c.url
		}
		return ""
	}
	code = run(context.Background(), args, getenv, strings.NewReader(""), &out, &errOut)
	return code, out.String(), errOut.String()
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, stdout string) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env), "stdout: %s", stdout)
	return env
}

func TestCLIRecordLifecycle(t *testing.T) {
	c := newCLI(t)

	code, stdout, stderr := c.run("create-table", "widgets", "--column", "label:string", "--column", "count:integer")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "ok", decodeEnvelope(t, stdout).Status)

	code, _, stderr = c.run("create-table", "widgets", "--column", "label:string", "--column", "count:integer")
	assert.Equal(t, 4, code)
	assert.Contains(t, stderr, "error: table 'widgets' already exists")

	code, stdout, stderr = c.run("insert", "widgets", "--data", `{"label": "a", "count": 5}`)
	require.Equal(t, 0, code, stderr)
	var inserted struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, stdout).Data, &inserted))
	require.Len(t, inserted.Data, 1)
	id := inserted.Data[0]["id"].(string)

	code, stdout, stderr = c.run("update", "widgets", id, "--data", `{"count": 6}`)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, `"count": 6`)

	code, stdout, _ = c.run("--format", "text", "get", "widgets", id)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, id)

	code, stdout, _ = c.run("--format", "text", "count", "widgets")
	require.Equal(t, 0, code)
	assert.Equal(t, "1\n", stdout)

	code, _, _ = c.run("insert", "widgets", "--data", `{"nope": 1}`)
	assert.Equal(t, 2, code)

	code, stdout, _ = c.run("--format", "text", "delete", "widgets", id)
	require.Equal(t, 0, code)
	assert.Equal(t, "Deleted 1 row with id: "+id+"\n", stdout)

	code, _, _ = c.run("get", "widgets", id)
	assert.Equal(t, 3, code)

	code, stdout, _ = c.run("--format", "markdown", "describe", "widgets")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "## widgets")

	code, stdout, _ = c.run("--format", "text", "tables")
	require.Equal(t, 0, code)
	assert.Equal(t, "widgets\n", stdout)

	code, _, _ = c.run("drop-table", "widgets")
	assert.Equal(t, 0, code)
}

func TestCLIExecRequiresFlag(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("exec", "SELECT 1")
	assert.Equal(t, 5, code)
	assert.Contains(t, stderr, "raw SQL execution is disabled")

	code, stdout, stderr := c.run("--allow-raw-sql", "--format", "text", "exec", "CREATE TABLE t (a INTEGER)")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "0 row(s) affected\n", stdout)
}

func TestCLIRejectsBadSettings(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("--format", "yaml", "tables")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid format")

	code, _, _ = c.run("--pool-size", "0", "tables")
	assert.Equal(t, 1, code)

	code, _, _ = c.run("create-table", "widgets", "--column", "label")
	assert.Equal(t, 2, code)
}
