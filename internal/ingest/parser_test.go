package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, record InvoiceRecord) string {
	t.Helper()
	payload, err := json.Marshal(record)
	require.NoError(t, err)
	env, err := json.Marshal(lineEnvelope{Key: "doc.pdf", Response: string(payload)})
	require.NoError(t, err)
	return string(env)
}

func validRecord(code string) InvoiceRecord {
	return InvoiceRecord{
		ProviderName:  "Aceros del Norte SL",
		ProviderTaxID: "B12345678",
		InvoiceCode:   code,
		IssueDate:     Date{Time: mustDate("2026-03-01")},
		Items: []ItemRecord{
			{Name: "Tornillo M8", Quantity: dec("10"), UnitPrice: dec("0.50")},
		},
	}
}

func drain(p *Parser) []InvoiceRecord {
	var records []InvoiceRecord
	for {
		record, ok := p.Next()
		if !ok {
			return records
		}
		records = append(records, record)
	}
}

func TestParserStreamsRecords(t *testing.T) {
	src := envelope(t, validRecord("F-001")) + "\n" + envelope(t, validRecord("F-002")) + "\n"

	p := NewParser(strings.NewReader(src))
	records := drain(p)

	require.NoError(t, p.Err())
	require.Len(t, records, 2)
	assert.Equal(t, "F-001", records[0].InvoiceCode)
	assert.Equal(t, "F-002", records[1].InvoiceCode)
	assert.Empty(t, p.Failures())
}

func TestParserSurvivesCorruptedLine(t *testing.T) {
	lines := []string{
		envelope(t, validRecord("F-001")),
		`{"key": "bad.pdf", "response": "{not json at all`,
		envelope(t, validRecord("F-003")),
	}

	p := NewParser(strings.NewReader(strings.Join(lines, "\n")))
	records := drain(p)

	require.NoError(t, p.Err())
	require.Len(t, records, 2)
	assert.Equal(t, "F-001", records[0].InvoiceCode)
	assert.Equal(t, "F-003", records[1].InvoiceCode)

	require.Len(t, p.Failures(), 1)
	assert.Equal(t, 2, p.Failures()[0].Line)
	assert.Contains(t, p.Failures()[0].Reason, "payload")
}

func TestParserRejectsSchemaViolations(t *testing.T) {
	record := validRecord("F-001")
	record.Items = nil

	p := NewParser(strings.NewReader(envelope(t, record)))
	records := drain(p)

	require.NoError(t, p.Err())
	assert.Empty(t, records)
	require.Len(t, p.Failures(), 1)
	assert.Contains(t, p.Failures()[0].Reason, "schema")
}

func TestParserHandlesCRLFAndBlankLines(t *testing.T) {
	src := envelope(t, validRecord("F-001")) + "\r\n\r\n" + envelope(t, validRecord("F-002")) + "\r\n"

	p := NewParser(strings.NewReader(src))
	records := drain(p)

	require.NoError(t, p.Err())
	require.Len(t, records, 2)
	assert.Empty(t, p.Failures())
}

func TestParserFailureLineIsPhysical(t *testing.T) {
	src := envelope(t, validRecord("F-001")) + "\n\nnot json\n"

	p := NewParser(strings.NewReader(src))
	drain(p)

	require.Len(t, p.Failures(), 1)
	assert.Equal(t, 3, p.Failures()[0].Line)
}

func TestParserEmptyEnvelope(t *testing.T) {
	p := NewParser(strings.NewReader(`{"key": "doc.pdf", "response": ""}`))
	drain(p)

	require.Len(t, p.Failures(), 1)
	assert.Contains(t, p.Failures()[0].Reason, "empty response")
}

func TestDateUnmarshal(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-15"`), &d))
	assert.Equal(t, "2026-03-15", d.Format("2006-01-02"))

	require.NoError(t, json.Unmarshal([]byte(`"2026-03-15T10:30:00Z"`), &d))
	assert.Equal(t, "2026-03-15", d.Format("2006-01-02"))

	assert.Error(t, json.Unmarshal([]byte(`"15/03/2026"`), &d))
}
