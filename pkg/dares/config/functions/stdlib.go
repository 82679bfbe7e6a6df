// Package functions holds the function table available to config files.
package functions

import (
	"fmt"

	"github.com/hashicorp/go-cty-funcs/encoding"
	"github.com/hashicorp/go-cty-funcs/filesystem"
	"github.com/hashicorp/go-cty-funcs/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/userfunc"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// GetStandardLibraryFunctions returns the built-in functions. Each call
// returns a fresh map that callers may extend.
func GetStandardLibraryFunctions() map[string]function.Function {
	return map[string]function.Function{
		// Strings
		"upper":      stdlib.UpperFunc,
		"lower":      stdlib.LowerFunc,
		"title":      stdlib.TitleFunc,
		"substr":     stdlib.SubstrFunc,
		"strlen":     stdlib.StrlenFunc,
		"split":      stdlib.SplitFunc,
		"join":       stdlib.JoinFunc,
		"trim":       stdlib.TrimFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"trimsuffix": stdlib.TrimSuffixFunc,
		"trimprefix": stdlib.TrimPrefixFunc,
		"replace":    stdlib.ReplaceFunc,
		"regex":      stdlib.RegexFunc,
		"format":     stdlib.FormatFunc,

		// Numbers
		"max":   stdlib.MaxFunc,
		"min":   stdlib.MinFunc,
		"ceil":  stdlib.CeilFunc,
		"floor": stdlib.FloorFunc,

		// Collections
		"coalesce": stdlib.CoalesceFunc,
		"concat":   stdlib.ConcatFunc,
		"contains": stdlib.ContainsFunc,
		"distinct": stdlib.DistinctFunc,
		"length":   stdlib.LengthFunc,
		"lookup":   stdlib.LookupFunc,
		"merge":    stdlib.MergeFunc,

		// Encoding
		"jsondecode":   stdlib.JSONDecodeFunc,
		"jsonencode":   stdlib.JSONEncodeFunc,
		"base64decode": encoding.Base64DecodeFunc,
		"base64encode": encoding.Base64EncodeFunc,
		"urlencode":    encoding.URLEncodeFunc,

		// Conversion
		"tostring": stdlib.MakeToFunc(cty.String),
		"tonumber": stdlib.MakeToFunc(cty.Number),
		"tobool":   stdlib.MakeToFunc(cty.Bool),

		// Filesystem
		"abspath":    filesystem.AbsPathFunc,
		"basename":   filesystem.BasenameFunc,
		"dirname":    filesystem.DirnameFunc,
		"pathexpand": filesystem.PathExpandFunc,

		"uuidv4": uuid.V4Func,
	}
}

// ExtractUserFunctions decodes "function" blocks from each body and returns
// the remaining bodies with those blocks removed.
func ExtractUserFunctions(bodies []hcl.Body, getEvalCtx func() *hcl.EvalContext) (map[string]function.Function, []hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	remainingBodies := make([]hcl.Body, 0, len(bodies))
	allFuncs := make(map[string]function.Function)

	for _, body := range bodies {
		funcs, remainingBody, funcDiags := userfunc.DecodeUserFunctions(body, "function", getEvalCtx)
		diags = diags.Extend(funcDiags)
		if funcDiags.HasErrors() {
			continue
		}

		remainingBodies = append(remainingBodies, remainingBody)

		for name, fn := range funcs {
			if _, exists := allFuncs[name]; exists {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate function",
					Detail:   fmt.Sprintf("Function %s is already defined", name),
				})
				continue
			}
			allFuncs[name] = fn
		}
	}

	if diags.HasErrors() {
		return nil, nil, diags
	}
	return allFuncs, remainingBodies, diags
}

// Merge adds user functions to the built-in table. Built-in names are
// reserved.
func Merge(builtin, user map[string]function.Function) (map[string]function.Function, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	for name, fn := range user {
		if _, exists := builtin[name]; exists {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate function",
				Detail:   fmt.Sprintf("Function %s is reserved and can't be overridden", name),
			})
			continue
		}
		builtin[name] = fn
	}

	return builtin, diags
}
