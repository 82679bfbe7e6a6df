package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
)

// LoadDotEnv loads variables from dotenv files without overriding variables
// already set. With no files it loads ./.env if present.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		files = []string{".env"}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// GetEnvObject returns the environment as a cty object for the evaluation
// context, so config files can write env.VITE_WS_URL.
func GetEnvObject() cty.Value {
	envMap := make(map[string]cty.Value)

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	if len(envMap) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(envMap)
}

// sanitizeEnvVarName maps a variable name onto a valid HCL identifier by
// replacing invalid characters with underscores.
func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var result strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			result.WriteRune(r)
		case i > 0 && ((r >= '0' && r <= '9') || r == '-'):
			result.WriteRune(r)
		default:
			result.WriteRune('_')
		}
	}
	return result.String()
}
