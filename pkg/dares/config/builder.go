package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/tsarna/dares/pkg/dares/config/functions"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// ConfigBuilder assembles a Config from HCL sources.
type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
	base    *Config
}

// NewConfig starts from Default(). Sources are applied in order.
func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		logger:  zap.NewNop(),
		sources: make([]any, 0),
	}
}

// WithLogger sets the logger used while loading.
func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		cb.logger = logger
	}
	return cb
}

// WithSources adds config files, directories or inline []byte sources.
func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

// WithBase replaces the starting configuration.
func (cb *ConfigBuilder) WithBase(base *Config) *ConfigBuilder {
	cb.base = base
	return cb
}

// Build evaluates the sources and validates the result.
func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	config := Default()
	if cb.base != nil {
		copied := *cb.base
		config = &copied
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": GetEnvObject(),
		},
	}

	userFuncs, bodies, addDiags := functions.ExtractUserFunctions(bodies, func() *hcl.EvalContext { return evalCtx })
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	evalCtx.Functions, addDiags = functions.Merge(functions.GetStandardLibraryFunctions(), userFuncs)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	var blocks hcl.Blocks
	for _, body := range bodies {
		content, contentDiags := body.Content(configSchema)
		diags = diags.Extend(contentDiags)
		if content != nil {
			blocks = append(blocks, content.Blocks...)
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(cb.evaluateConstants(evalCtx, blocks.ByType()["const"]))
	if diags.HasErrors() {
		return nil, diags
	}

	handlers := GetBlockHandlers()
	for _, block := range blocks {
		if handler, ok := handlers[block.Type]; ok {
			diags = diags.Extend(handler.Process(config, evalCtx, block))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	if err := config.Validate(); err != nil {
		return nil, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid configuration",
			Detail:   err.Error(),
		})
	}

	cb.logger.Debug("Config built successfully", zap.Int("sources", len(cb.sources)))

	return config, diags
}

// evaluateConstants adds const block attributes to the evaluation context in
// dependency order so constants may refer to each other.
func (cb *ConfigBuilder) evaluateConstants(evalCtx *hcl.EvalContext, blocks hcl.Blocks) hcl.Diagnostics {
	reserved := make(map[string]bool, len(evalCtx.Variables))
	for name := range evalCtx.Variables {
		reserved[name] = true
	}

	consts, diags := collectConstants(blocks, reserved)
	if diags.HasErrors() {
		return diags
	}

	attrs, sortDiags := SortAttributesByDependencies(consts)
	diags = diags.Extend(sortDiags)
	if diags.HasErrors() {
		return diags
	}

	for _, attr := range attrs {
		value, evalDiags := attr.Expr.Value(evalCtx)
		diags = diags.Extend(evalDiags)
		evalCtx.Variables[attr.Name] = value
	}

	return diags
}
