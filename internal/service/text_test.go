package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifierStripsScannerFraming(t *testing.T) {
	require.Equal(t, "1234", normalizeIdentifier("*1234*\r\n"))
	require.Equal(t, "1234", normalizeIdentifier("  1234 "))
	require.Equal(t, "", normalizeIdentifier("**"))
}

func TestUniqueNumbersNormalisesAndDeduplicates(t *testing.T) {
	require.Equal(t, []string{"CAM-07", "TRI-01"}, uniqueNumbers([]string{" cam-07", "TRI-01", "Cam-07", ""}))
}

func TestCleanTextRemovesMarkup(t *testing.T) {
	require.Equal(t, "Lens cap missing & scratched", cleanText("<b>Lens cap missing</b> & scratched "))
}
