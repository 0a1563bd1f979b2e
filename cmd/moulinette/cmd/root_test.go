package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/moulinette/internal/domain/models"
)

const exportFile = `E;BKE02;Inventaire;1;BKE02;20240401
S;SES1;INV1;1000;BKE02;50;0;1;ARTA;EMP01;A;UN;0;ZONE1;LOT010124
S;SES1;INV1;2000;BKE02;30;0;1;ARTA;EMP01;A;UN;0;ZONE1;LOT010224
S;SES1;INV1;3000;BKE02;20;0;1;ARTA;EMP01;A;UN;0;ZONE1;LOT010324
`

const countsFile = `Code Article;Numéro Inventaire;Numéro Lot;Quantité Réelle
ARTA;INV1;LOT010124;50
ARTA;INV1;LOT010224;30
`

func writeInputs(t *testing.T) (dir, export, counts string) {
	t.Helper()
	dir = t.TempDir()
	export = filepath.Join(dir, "inventaire.csv")
	counts = filepath.Join(dir, "comptage.csv")
	require.NoError(t, os.WriteFile(export, []byte(exportFile), 0o600))
	require.NoError(t, os.WriteFile(counts, []byte(countsFile), 0o600))
	return dir, export, counts
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestReconcileCommand(t *testing.T) {
	dir, export, counts := writeInputs(t)
	out := filepath.Join(dir, "corrige.csv")

	stdout, err := execute(t, "reconcile", "--export", export, "--counts", counts, "--strategy", "lifo", "--out", out)
	require.NoError(t, err)

	var summary models.RunSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, models.StrategyLIFO, summary.Strategy)
	assert.Equal(t, "-20", summary.TotalDiscrepancy.String())
	assert.Equal(t, 4, summary.LinesWritten)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(written)), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3], ";0;0;2;ARTA;")
}

func TestReconcileCommandRejectsStrategy(t *testing.T) {
	dir, export, counts := writeInputs(t)
	_, err := execute(t, "reconcile", "--export", export, "--counts", counts, "--strategy", "random", "--out", filepath.Join(dir, "x.csv"))
	assert.Error(t, err)
}

func TestReconcileCommandRequiresFlags(t *testing.T) {
	_, err := execute(t, "reconcile", "--export", "inventaire.csv")
	assert.Error(t, err)
}

func TestTemplateCommand(t *testing.T) {
	dir, export, _ := writeInputs(t)
	out := filepath.Join(dir, "template.csv")

	stdout, err := execute(t, "template", "--export", export, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 lines written")

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(written), "Code Article;")
	assert.Contains(t, string(written), "ARTA;INV1;LOT010324")
}
