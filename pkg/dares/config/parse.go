package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// FileExtension is the suffix of config files picked up from a directory.
const FileExtension = ".hcl"

// ParseConfigFiles parses each source. A string is a file or a directory of
// *.hcl files; a []byte is inline config.
func ParseConfigFiles(sources ...any) ([]hcl.Body, hcl.Diagnostics) {
	parser := hclparse.NewParser()
	var diags hcl.Diagnostics
	bodies := make([]hcl.Body, 0, len(sources))

	for i, source := range sources {
		switch v := source.(type) {
		case string:
			info, err := os.Stat(v)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Failed to stat file",
					Detail:   fmt.Sprintf("Error statting %s: %s", v, err),
				})
				continue
			}

			if info.IsDir() {
				newBodies, newDiags := parseDirectory(parser, v)
				diags = diags.Extend(newDiags)
				bodies = append(bodies, newBodies...)
				continue
			}

			file, parseDiags := parser.ParseHCLFile(v)
			diags = diags.Extend(parseDiags)
			if file != nil {
				bodies = append(bodies, file.Body)
			}

		case []byte:
			file, parseDiags := parser.ParseHCL(v, fmt.Sprintf("<inline-%d>", i))
			diags = diags.Extend(parseDiags)
			if file != nil {
				bodies = append(bodies, file.Body)
			}

		default:
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid source type",
				Detail:   fmt.Sprintf("Invalid source type: %T", v),
			})
		}
	}

	return bodies, diags
}

func parseDirectory(parser *hclparse.Parser, dir string) ([]hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	bodies := make([]hcl.Body, 0)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to access file or directory",
				Detail:   fmt.Sprintf("Error accessing %s: %s", path, err),
			})
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(path, FileExtension) {
			file, parseDiags := parser.ParseHCLFile(path)
			diags = diags.Extend(parseDiags)
			if file != nil {
				bodies = append(bodies, file.Body)
			}
		}
		return nil
	})

	if err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to walk directory",
			Detail:   fmt.Sprintf("Error walking directory %s: %s", dir, err),
		})
	}

	return bodies, diags
}
