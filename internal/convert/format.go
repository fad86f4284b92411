package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is the kind of input a conversion job starts from.
type Format int

const (
	FormatUnknown Format = iota
	FormatThermo
	FormatWaters
	FormatSciex
	FormatAgilentBruker
	FormatMzML
	FormatMzXML
	FormatChrom
)

func (f Format) String() string {
	switch f {
	case FormatThermo:
		return "thermo"
	case FormatWaters:
		return "waters"
	case FormatSciex:
		return "sciex"
	case FormatAgilentBruker:
		return "agilent_bruker"
	case FormatMzML:
		return "mzML"
	case FormatMzXML:
		return "mzXML"
	case FormatChrom:
		return "chrom"
	default:
		return "unknown"
	}
}

// IsVendor reports whether the format needs msconvert before anything else.
func (f Format) IsVendor() bool {
	switch f {
	case FormatThermo, FormatWaters, FormatSciex, FormatAgilentBruker:
		return true
	default:
		return false
	}
}

// IsSpectra reports whether the format is an open intermediate format.
func (f Format) IsSpectra() bool {
	return f == FormatMzML || f == FormatMzXML
}

// ChromExt is the extension of chromatogram files produced by stage two.
const ChromExt = ".chrom"

// Detect classifies path by suffix. ".raw" is Thermo when it is a file and
// Waters when it is a directory; ".d" directories cover Agilent and Bruker.
func Detect(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, err
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimRight(path, string(filepath.Separator))))
	switch ext {
	case ".raw":
		if info.IsDir() {
			return FormatWaters, nil
		}
		return FormatThermo, nil
	case ".wiff":
		if !info.IsDir() {
			return FormatSciex, nil
		}
	case ".d":
		if info.IsDir() {
			return FormatAgilentBruker, nil
		}
	case ".mzml":
		if !info.IsDir() {
			return FormatMzML, nil
		}
	case ".mzxml":
		if !info.IsDir() {
			return FormatMzXML, nil
		}
	case ChromExt:
		return FormatChrom, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported input format %q", filepath.Base(path))
}

// IntermediateExt returns the file extension for the configured intermediate
// format name ("mzML" or "mzXML").
func IntermediateExt(format string) string {
	if strings.EqualFold(format, "mzXML") {
		return ".mzXML"
	}
	return ".mzML"
}
