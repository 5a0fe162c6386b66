// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transforms

import (
	"os"
	"regexp"
	"strings"

	"github.com/stoewer/go-strcase"
)

// NamingConventionEnv selects the case used for names generated from Go
// identifiers. Accepted values are "snake_case" (default) and "camelCase".
const NamingConventionEnv = "AGENTFLOW_NAMING_CONVENTION"

var nonAlphanumericRegexp = regexp.MustCompile(`[^a-zA-Z0-9]`)

// TransformStringFunctionStyle turns an arbitrary display name into a
// lowercase identifier safe to use as a tool name.
func TransformStringFunctionStyle(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = nonAlphanumericRegexp.ReplaceAllString(name, "_")
	return strings.ToLower(name)
}

func ToSnakeCase(s string) string {
	return strcase.SnakeCase(s)
}

func ToCamelCase(s string) string {
	return strcase.LowerCamelCase(s)
}

// ToCase converts s according to the naming convention configured through
// NamingConventionEnv.
func ToCase(s string) string {
	if os.Getenv(NamingConventionEnv) == "camelCase" {
		return ToCamelCase(s)
	}
	return ToSnakeCase(s)
}
