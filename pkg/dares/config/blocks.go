package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
)

var configSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "api"},
		{Type: "const"},
		{Type: "log"},
		{Type: "pagination"},
		{Type: "realtime"},
		{Type: "refresh"},
		{Type: "session"},
	},
}

// BlockHandler applies one top-level block onto a Config. Blocks of the same
// type in later files override earlier attributes one by one.
type BlockHandler interface {
	Process(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics
}

type blockHandlerFunc func(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics

func (f blockHandlerFunc) Process(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	return f(config, evalCtx, block)
}

// GetBlockHandlers returns the handler for each top-level block type.
func GetBlockHandlers() map[string]BlockHandler {
	return map[string]BlockHandler{
		"api":        blockHandlerFunc(processAPIBlock),
		"log":        blockHandlerFunc(processLogBlock),
		"pagination": blockHandlerFunc(processPaginationBlock),
		"realtime":   blockHandlerFunc(processRealtimeBlock),
		"refresh":    blockHandlerFunc(processRefreshBlock),
		"session":    blockHandlerFunc(processSessionBlock),
	}
}

type apiBlock struct {
	BaseURL *string        `hcl:"base_url,optional"`
	Timeout hcl.Expression `hcl:"timeout,optional"`
}

func processAPIBlock(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	var b apiBlock
	diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
	if diags.HasErrors() {
		return diags
	}

	if b.BaseURL != nil {
		config.API.BaseURL = *b.BaseURL
	}
	diags = diags.Extend(optionalDuration(b.Timeout, evalCtx, &config.API.Timeout))
	return diags
}

type realtimeBlock struct {
	URL                  *string        `hcl:"url,optional"`
	Origin               *string        `hcl:"origin,optional"`
	Enabled              *bool          `hcl:"enabled,optional"`
	ReconnectDelay       hcl.Expression `hcl:"reconnect_delay,optional"`
	MaxReconnectAttempts *int           `hcl:"max_reconnect_attempts,optional"`
	DialTimeout          hcl.Expression `hcl:"dial_timeout,optional"`
}

func processRealtimeBlock(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	var b realtimeBlock
	diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
	if diags.HasErrors() {
		return diags
	}

	if b.URL != nil {
		config.Realtime.URL = *b.URL
	}
	if b.Origin != nil {
		config.Realtime.Origin = *b.Origin
	}
	if b.Enabled != nil {
		config.Realtime.Disabled = !*b.Enabled
	}
	if b.MaxReconnectAttempts != nil {
		config.Realtime.MaxReconnectAttempts = *b.MaxReconnectAttempts
	}
	diags = diags.Extend(optionalDuration(b.ReconnectDelay, evalCtx, &config.Realtime.ReconnectDelay))
	diags = diags.Extend(optionalDuration(b.DialTimeout, evalCtx, &config.Realtime.DialTimeout))
	return diags
}

type paginationBlock struct {
	PageSize    *int `hcl:"page_size,optional"`
	MaxPageSize *int `hcl:"max_page_size,optional"`
}

func processPaginationBlock(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	var b paginationBlock
	diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
	if diags.HasErrors() {
		return diags
	}

	if b.PageSize != nil {
		config.Pagination.PageSize = *b.PageSize
	}
	if b.MaxPageSize != nil {
		config.Pagination.MaxPageSize = *b.MaxPageSize
	}
	return diags
}

type refreshBlock struct {
	Mode         *string        `hcl:"mode,optional"`
	PollInterval hcl.Expression `hcl:"poll_interval,optional"`
	Events       *[]string      `hcl:"events,optional"`
}

func processRefreshBlock(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	var b refreshBlock
	diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
	if diags.HasErrors() {
		return diags
	}

	if b.Mode != nil {
		config.Refresh.Mode = *b.Mode
	}
	if b.Events != nil {
		config.Refresh.Events = *b.Events
	}
	diags = diags.Extend(optionalDuration(b.PollInterval, evalCtx, &config.Refresh.PollInterval))
	return diags
}

type sessionBlock struct {
	Path *string `hcl:"path,optional"`
}

func processSessionBlock(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	var b sessionBlock
	diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
	if b.Path != nil {
		config.Session.Path = *b.Path
	}
	return diags
}

type logBlock struct {
	Level *string `hcl:"level,optional"`
}

func processLogBlock(config *Config, evalCtx *hcl.EvalContext, block *hcl.Block) hcl.Diagnostics {
	var b logBlock
	diags := gohcl.DecodeBody(block.Body, evalCtx, &b)
	if b.Level != nil {
		config.Log.Level = *b.Level
	}
	return diags
}

// optionalDuration stores the parsed duration in target when the attribute
// was set to a non-null value.
func optionalDuration(expr hcl.Expression, evalCtx *hcl.EvalContext, target *time.Duration) hcl.Diagnostics {
	if !IsExpressionProvided(expr) {
		return nil
	}

	d, diags := ParseDuration(expr, evalCtx)
	if !diags.HasErrors() {
		*target = d
	}
	return diags
}

// collectConstants gathers the attributes of every const block, rejecting
// names defined twice or shadowing built-in variables.
func collectConstants(blocks hcl.Blocks, reserved map[string]bool) (hcl.Attributes, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	consts := make(hcl.Attributes)

	for _, block := range blocks {
		attrs, attrDiags := block.Body.JustAttributes()
		diags = diags.Extend(attrDiags)

		for name, attr := range attrs {
			if reserved[name] {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Reserved constant name",
					Detail:   fmt.Sprintf("Constant %s would shadow a built-in variable", name),
					Subject:  &attr.NameRange,
				})
				continue
			}
			if existing, exists := consts[name]; exists {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate attribute",
					Detail:   fmt.Sprintf("Attribute %s at %v is already defined at %v", name, attr.NameRange, existing.NameRange),
					Subject:  &attr.NameRange,
				})
				continue
			}
			consts[name] = attr
		}
	}

	return consts, diags
}
