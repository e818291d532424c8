package http

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLeadCSV(t *testing.T) {
	csv := strings.Join([]string{
		"Email,Name,Last_Name,City,Brokerage,Service,website",
		"ada@example.com,Ada,Lovelace,London,Analytical Homes,listings,ada.example.com",
		"grace@example.com,Grace,Hopper,Arlington,Navy Realty,valuation,",
	}, "\n")

	leads, skipped, err := parseLeadCSV(strings.NewReader(csv), "q3-outreach")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, leads, 2)

	assert.Equal(t, "ada@example.com", leads[0].Email)
	assert.Equal(t, "Ada", leads[0].Name)
	assert.Equal(t, "Lovelace", leads[0].LastName)
	assert.Equal(t, "q3-outreach", leads[0].ListName)
	assert.Equal(t, "ada.example.com", leads[0].CustomFields["website"])

	// empty extra column never creates a custom field
	assert.NotContains(t, leads[1].CustomFields, "website")
}

func TestParseLeadCSVSkipsBadRows(t *testing.T) {
	csv := strings.Join([]string{
		"email,name",
		"good@example.com,Good",
		",Missing Email",
		"not-an-email,Bad",
	}, "\n")

	leads, skipped, err := parseLeadCSV(strings.NewReader(csv), "list")
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, leads, 1)
	assert.Equal(t, "good@example.com", leads[0].Email)
}

func TestParseLeadCSVLowercasesEmail(t *testing.T) {
	leads, _, err := parseLeadCSV(strings.NewReader("email\nMiXeD@Example.COM\n"), "list")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "mixed@example.com", leads[0].Email)
}

func TestParseLeadCSVRequiresEmailColumn(t *testing.T) {
	_, _, err := parseLeadCSV(strings.NewReader("name,city\nAda,London\n"), "list")
	require.Error(t, err)
}
