package archive

import (
	"archive/zip"
	"encoding/json"
	"fisconforme-backend/internal/documents"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is the archive content of one entity.
type Entry struct {
	EntityID  string
	Code      string
	LegalName string
	Artifacts []documents.Artifact
	Errors    []string
}

type Bundle struct {
	RunID       string
	Tenant      string
	GeneratedAt time.Time
	// Entities counts every entity of the run, Failed those without results.
	Entities int
	Failed   int
	Entries  []Entry
}

// Artifacts is the number of pdfs in the bundle.
func (b Bundle) Artifacts() int {
	n := 0
	for _, e := range b.Entries {
		n += len(e.Artifacts)
	}
	return n
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

const maxFolderNameLength = 30

// FolderName is "{code}_{legal name}" with the name reduced to ascii
// alphanumerics and underscores.
func FolderName(code, legalName string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		code = "0"
	}
	legalName = strings.TrimSpace(legalName)
	if legalName == "" {
		legalName = "empresa"
	}
	name := nonAlphanumeric.ReplaceAllString(legalName, "_")
	if len(name) > maxFolderNameLength {
		name = name[:maxFolderNameLength]
	}
	return code + "_" + name
}

// folderNames assigns every entry its FolderName, entries that collide with an
// earlier one get their entity id appended, then a counter.
func folderNames(entries []Entry) []string {
	used := map[string]bool{}
	names := make([]string, len(entries))
	for i, entry := range entries {
		name := FolderName(entry.Code, entry.LegalName)
		if used[name] {
			id := nonAlphanumeric.ReplaceAllString(strings.TrimSpace(entry.EntityID), "_")
			if id != "" {
				name += "_" + id
			}
			base := name
			for n := 2; used[name]; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// ArchiveName is the download name of a tenant bundle generated on day.
func ArchiveName(tenant string, day time.Time) string {
	return fmt.Sprintf("dares_%s_%s.zip", nonAlphanumeric.ReplaceAllString(tenant, "_"), day.Format("2006-01-02"))
}

// Write streams the bundle as a zip: one folder per entity with its pdfs,
// plus summary.json and summary.pdf at the root.
func Write(w io.Writer, bundle Bundle) error {
	zw := zip.NewWriter(w)

	folders := folderNames(bundle.Entries)
	for i, entry := range bundle.Entries {
		for _, artifact := range entry.Artifacts {
			err := writeFile(zw, path.Join(folders[i], artifact.FileName), bundle.GeneratedAt, artifact.PDF)
			if err != nil {
				return err
			}
		}
	}

	summary, err := json.MarshalIndent(newSummary(bundle), "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	err = writeFile(zw, "summary.json", bundle.GeneratedAt, summary)
	if err != nil {
		return err
	}

	report, err := summaryPDF(bundle)
	if err != nil {
		return err
	}
	err = writeFile(zw, "summary.pdf", bundle.GeneratedAt, report)
	if err != nil {
		return err
	}

	return zw.Close()
}

func writeFile(zw *zip.Writer, name string, modified time.Time, contents []byte) error {
	f, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	_, err = f.Write(contents)
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	return nil
}

type summaryEntry struct {
	EntityID  string          `json:"entityId"`
	Code      string          `json:"code"`
	LegalName string          `json:"legalName"`
	Folder    string          `json:"folder"`
	Files     []string        `json:"files"`
	Total     decimal.Decimal `json:"total"`
	Errors    []string        `json:"errors"`
}

type summary struct {
	RunID       string          `json:"runId"`
	Tenant      string          `json:"tenant"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Entities    int             `json:"entities"`
	Failed      int             `json:"failed"`
	Artifacts   int             `json:"artifacts"`
	Total       decimal.Decimal `json:"total"`
	Results     []summaryEntry  `json:"results"`
}

func entryTotal(entry Entry) decimal.Decimal {
	total := decimal.Zero
	for _, a := range entry.Artifacts {
		total = total.Add(a.Record.Amount())
	}
	return total
}

func newSummary(bundle Bundle) summary {
	s := summary{
		RunID:       bundle.RunID,
		Tenant:      bundle.Tenant,
		GeneratedAt: bundle.GeneratedAt,
		Entities:    bundle.Entities,
		Failed:      bundle.Failed,
		Artifacts:   bundle.Artifacts(),
		Total:       decimal.Zero,
		Results:     []summaryEntry{},
	}
	folders := folderNames(bundle.Entries)
	for i, entry := range bundle.Entries {
		files := []string{}
		for _, a := range entry.Artifacts {
			files = append(files, a.FileName)
		}
		errs := entry.Errors
		if errs == nil {
			errs = []string{}
		}
		total := entryTotal(entry)
		s.Total = s.Total.Add(total)
		s.Results = append(s.Results, summaryEntry{
			EntityID:  entry.EntityID,
			Code:      entry.Code,
			LegalName: entry.LegalName,
			Folder:    folders[i],
			Files:     files,
			Total:     total,
			Errors:    errs,
		})
	}
	return s
}
