package documents

import (
	"bytes"
	"errors"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// keep pdfcpu from creating a config directory under the user's home
	model.ConfigPath = "disable"
}

var errNothingToMerge = errors.New("no pdf to merge")

// PdfcpuMerger merges in memory with pdfcpu.
type PdfcpuMerger struct{}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (PdfcpuMerger) Merge(parts ...[]byte) ([]byte, error) {
	var readers []io.ReadSeeker
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		readers = append(readers, bytes.NewReader(part))
	}
	switch len(readers) {
	case 0:
		return nil, &MergeError{Err: errNothingToMerge}
	case 1:
		for _, part := range parts {
			if len(part) > 0 {
				return part, nil
			}
		}
	}

	var out bytes.Buffer
	err := api.MergeRaw(readers, &out, false, pdfConfig())
	if err != nil {
		return nil, &MergeError{Err: err}
	}
	return out.Bytes(), nil
}

// PageCount is used to sanity check merged output.
func PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), pdfConfig())
}
