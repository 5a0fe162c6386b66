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

package agents

import (
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/openai/openai-go/v2/option"
)

// DefaultModelName is used when neither the run nor the agent name a model.
const DefaultModelName = "gpt-4.1"

type OpenAIProviderParams struct {
	// The API key to use for the OpenAI client. If not provided, we will use the
	// default API key.
	APIKey optional.Optional[string]

	// The base URL to use for the OpenAI client. If not provided, we will use the
	// default base URL.
	BaseURL optional.Optional[string]

	// An optional OpenAI client to use. If not provided, we will create a new
	// OpenAI client using the APIKey and BaseURL.
	OpenaiClient optional.Optional[OpenaiClient]

	Organization optional.Optional[string]
	Project      optional.Optional[string]

	// Model used for empty model names. Defaults to DefaultModelName.
	DefaultModel string
}

// OpenAIProvider resolves model names to OpenAIResponsesModel instances.
type OpenAIProvider struct {
	params OpenAIProviderParams

	clientOnce sync.Once
	client     OpenaiClient
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(params OpenAIProviderParams) *OpenAIProvider {
	if params.OpenaiClient.Present && (params.APIKey.Present || params.BaseURL.Present) {
		panic(errors.New("OpenAIProvider: don't provide APIKey or BaseURL if you provide OpenaiClient"))
	}
	return &OpenAIProvider{params: params}
}

func (provider *OpenAIProvider) GetModel(modelName string) (Model, error) {
	if modelName == "" {
		modelName = provider.params.DefaultModel
	}
	if modelName == "" {
		modelName = DefaultModelName
	}
	return NewOpenAIResponsesModel(modelName, provider.getClient()), nil
}

// We lazy load the client in case you never actually use OpenAIProvider.
func (provider *OpenAIProvider) getClient() OpenaiClient {
	provider.clientOnce.Do(func() {
		if c, ok := provider.params.OpenaiClient.Get(); ok {
			provider.client = c
			return
		}
		if c, ok := GetDefaultOpenaiClient().Get(); ok {
			provider.client = c
			return
		}

		apiKey := provider.params.APIKey.Or(GetDefaultOpenaiKey()).ValueOrFallbackFunc(func() string {
			v := os.Getenv("OPENAI_API_KEY")
			if v == "" {
				slog.Warn("OpenAIProvider: an API key is missing")
			}
			return v
		})

		options := []option.RequestOption{option.WithAPIKey(apiKey)}
		if v, ok := provider.params.Organization.Get(); ok {
			options = append(options, option.WithOrganization(v))
		}
		if v, ok := provider.params.Project.Get(); ok {
			options = append(options, option.WithProject(v))
		}
		provider.client = NewOpenaiClient(provider.params.BaseURL, options...)
	})
	return provider.client
}

var defaultModelProvider = sync.OnceValue(func() ModelProvider {
	return NewOpenAIProvider(OpenAIProviderParams{})
})
