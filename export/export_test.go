package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "transactions_export_income_excel.xlsx", FileName("income", "excel"))
	assert.Equal(t, "transactions_export_expense_csv.csv", FileName("expense", "csv"))
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	content := []byte("date,amount\n2026-01-02,15000\n")

	f, err := Save(dir, FileName("income", "csv"), content)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "transactions_export_income_csv.csv"), f.Path)
	assert.Equal(t, len(content), f.Size)
	assert.Equal(t, Checksum(content), f.Checksum)
	assert.Len(t, f.Checksum, 64)

	onDisk, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)
}

func TestSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, "a.csv", []byte("first"))
	require.NoError(t, err)
	f, err := Save(dir, "a.csv", []byte("second"))
	require.NoError(t, err)

	onDisk, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(onDisk))
}

func TestSaveRejectsBadInput(t *testing.T) {
	_, err := Save("", "a.csv", nil)
	assert.Error(t, err)

	_, err = Save(t.TempDir(), "../escape.csv", nil)
	assert.Error(t, err)

	_, err = Save(t.TempDir(), "", nil)
	assert.Error(t, err)
}

func TestChecksumKnownValue(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Checksum(nil))
}
