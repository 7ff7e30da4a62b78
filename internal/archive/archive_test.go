package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fisconforme-backend/internal/documents"
	"fisconforme-backend/internal/scrapers/sefin"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFolderName(t *testing.T) {
	require.Equal(t, "12_ACME_Com_rcio_LTDA", FolderName("12", "ACME Comércio LTDA"))
	require.Equal(t, "0_empresa", FolderName("", " "))
	require.Equal(t, "7_A_VERY_LONG_LEGAL_NAME_THAT_KE", FolderName("7", "A VERY LONG LEGAL NAME THAT KEEPS GOING"))
}

func TestWriteDisambiguatesFolders(t *testing.T) {
	artifact := documents.Artifact{FileName: "DARE_10-11-2026_1112_1,00.pdf", PDF: []byte("%PDF-1")}
	bundle := Bundle{
		RunID:       "run1",
		GeneratedAt: time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC),
		Entries: []Entry{
			{EntityID: "e1", Code: "12", LegalName: "ACME LTDA", Artifacts: []documents.Artifact{artifact}},
			{EntityID: "e2", Code: "12", LegalName: "ACME, LTDA", Artifacts: []documents.Artifact{artifact}},
			{EntityID: "e2", Code: "12", LegalName: "ACME LTDA", Artifacts: []documents.Artifact{artifact}},
		},
	}

	var buf bytes.Buffer
	require.Nil(t, Write(&buf, bundle))
	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.Nil(t, err)

	names := []string{}
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{
		"12_ACME_LTDA/DARE_10-11-2026_1112_1,00.pdf",
		"12_ACME_LTDA_e2/DARE_10-11-2026_1112_1,00.pdf",
		"12_ACME_LTDA_e2_2/DARE_10-11-2026_1112_1,00.pdf",
		"summary.json",
		"summary.pdf",
	}, names)
}

func TestArchiveName(t *testing.T) {
	day := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "dares_ana_example_com_2026-10-14.zip", ArchiveName("ana@example.com", day))
}

func TestWrite(t *testing.T) {
	bundle := Bundle{
		RunID:       "run1",
		Tenant:      "ana@example.com",
		GeneratedAt: time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC),
		Entities:    2,
		Failed:      1,
		Entries: []Entry{
			{
				EntityID:  "e1",
				Code:      "12",
				LegalName: "ACME LTDA",
				Artifacts: []documents.Artifact{{
					EntityID: "e1",
					FileName: "DARE_10-11-2026_1112_1.234,56.pdf",
					PDF:      []byte("%PDF-guide"),
					Record:   sefin.DebtRecord{UpdatedAmount: "1.234,56"},
				}},
			},
			{
				EntityID:  "e2",
				Code:      "13",
				LegalName: "Beta",
				Errors:    []string{"authentication failed after init: det home"},
			},
		},
	}

	var buf bytes.Buffer
	require.Nil(t, Write(&buf, bundle))

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.Nil(t, err)

	files := map[string][]byte{}
	names := []string{}
	for _, f := range reader.File {
		rc, err := f.Open()
		require.Nil(t, err)
		contents, err := io.ReadAll(rc)
		require.Nil(t, err)
		rc.Close()
		files[f.Name] = contents
		names = append(names, f.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"12_ACME_LTDA/DARE_10-11-2026_1112_1.234,56.pdf", "summary.json", "summary.pdf"}, names)
	require.Equal(t, []byte("%PDF-guide"), files["12_ACME_LTDA/DARE_10-11-2026_1112_1.234,56.pdf"])
	require.True(t, bytes.HasPrefix(files["summary.pdf"], []byte("%PDF")))

	var decoded map[string]any
	require.Nil(t, json.Unmarshal(files["summary.json"], &decoded))
	require.Equal(t, "run1", decoded["runId"])
	require.Equal(t, float64(1), decoded["artifacts"])
	require.Equal(t, float64(1), decoded["failed"])
	require.Equal(t, "1234.56", decoded["total"])

	results := decoded["results"].([]any)
	expected := []any{
		map[string]any{
			"entityId":  "e1",
			"code":      "12",
			"legalName": "ACME LTDA",
			"folder":    "12_ACME_LTDA",
			"files":     []any{"DARE_10-11-2026_1112_1.234,56.pdf"},
			"total":     "1234.56",
			"errors":    []any{},
		},
		map[string]any{
			"entityId":  "e2",
			"code":      "13",
			"legalName": "Beta",
			"folder":    "13_Beta",
			"files":     []any{},
			"total":     "0",
			"errors":    []any{"authentication failed after init: det home"},
		},
	}
	if diff := cmp.Diff(expected, results); diff != "" {
		t.Fatal(diff)
	}
}
