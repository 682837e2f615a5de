package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-rules/internal/auth"
)

const rulesYAML = `
rules:
  - id: derive-region
    name: Derive region
    type: business
    status: active
    enabled: true
    isActive: true
    priority: 1
    dataObject: purchaseOrder
    hookPoints: [beforeSave]
    conditions:
      - {id: 1, field: country, operator: equals, value: DE}
    actions:
      - {id: 1, type: setField, field: region, value: EU}
  - id: big-order
    name: Big order
    type: validation
    status: active
    enabled: true
    isActive: true
    priority: 2
    dataObject: purchaseOrder
    hookPoints: [beforeSave]
    conditions:
      - {id: 1, field: amount, operator: greaterThan, value: 1000}
      - {id: 2, field: region, operator: equals, value: EU}
    actions:
      - {id: 1, type: setField, field: approvalRequired, value: true}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run-hook", "exec-rule", "validate", "migrate", "token"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, name := range []string{"up", "down", "version", "force"} {
		sub, _, err := cmd.Find([]string{"migrate", name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRunHook(t *testing.T) {
	rules := writeFile(t, "rules.yaml", rulesYAML)
	data := writeFile(t, "order.json", `{"amount": 1500, "country": "DE"}`)

	out, err := run(t, "run-hook", "--rules", rules, "--data", data, "--hook", "beforeSave", "--data-object", "purchaseOrder")
	require.NoError(t, err)

	var res struct {
		TotalRules       int            `json:"totalRules"`
		ExecutedRules    int            `json:"executedRules"`
		ModifiedFormData map[string]any `json:"modifiedFormData"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, 2, res.TotalRules)
	assert.Equal(t, 2, res.ExecutedRules)
	assert.Equal(t, "EU", res.ModifiedFormData["region"])
	assert.Equal(t, true, res.ModifiedFormData["approvalRequired"])
}

func TestExecRule(t *testing.T) {
	rules := writeFile(t, "rules.yaml", rulesYAML)
	data := writeFile(t, "order.yaml", "amount: 1500\nregion: US\n")

	out, err := run(t, "exec-rule", "--rules", rules, "--data", data, "--id", "big-order")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, false, res["conditionsMet"])
	assert.Equal(t, "Conditions not met", res["message"])

	_, err = run(t, "exec-rule", "--rules", rules, "--data", data, "--id", "missing")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := writeFile(t, "good.yaml", rulesYAML)
	out, err := run(t, "validate", "--rules", good)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rules valid")

	bad := writeFile(t, "bad.json", `[
		{"id": "broken", "type": "business", "expression": "data.amount >"},
		{"id": "fine", "name": "Fine", "type": "business"}
	]`)
	out, err = run(t, "validate", "--rules", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 rules invalid")
	assert.Contains(t, out, "rule broken: name:")
	assert.Contains(t, out, "rule broken: expression:")
	assert.NotContains(t, out, "rule fine")
}

func TestLoadRuleFile_RejectsUnknownShape(t *testing.T) {
	path := writeFile(t, "odd.yaml", "rule: {}\n")
	_, err := LoadRuleFile(path)
	assert.Error(t, err)

	_, err = LoadRuleFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "--subject", "dev", "--roles", "admin,viewer", "--secret", "s3cret")
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(string(bytes.TrimSpace([]byte(out))), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "dev", claims.Subject)
	assert.Equal(t, []string{"admin", "viewer"}, claims.Roles)
}

func TestMigrate_ForceRejectsBadVersion(t *testing.T) {
	_, err := run(t, "migrate", "force", "abc", "--database", "postgres://localhost/none")
	assert.Error(t, err)
}
