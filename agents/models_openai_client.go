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
	"slices"
	"sync/atomic"

	"github.com/nlpodyssey/agentflow/types/optional"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type OpenaiClient struct {
	openai.Client
	BaseURL optional.Optional[string]
}

func NewOpenaiClient(baseURL optional.Optional[string], opts ...option.RequestOption) OpenaiClient {
	if v, ok := baseURL.Get(); ok {
		opts = append(slices.Clone(opts), option.WithBaseURL(v))
	}
	return OpenaiClient{
		Client:  openai.NewClient(opts...),
		BaseURL: baseURL,
	}
}

var (
	defaultOpenaiKey    atomic.Pointer[string]
	defaultOpenaiClient atomic.Pointer[OpenaiClient]
)

// SetDefaultOpenaiKey sets the default OpenAI API key to use for LLM requests.
// This is only necessary if the OPENAI_API_KEY environment variable is not already set.
func SetDefaultOpenaiKey(key string) {
	defaultOpenaiKey.Store(&key)
}

func GetDefaultOpenaiKey() optional.Optional[string] {
	return optional.FromPointer(defaultOpenaiKey.Load())
}

// SetDefaultOpenaiClient sets the default OpenAI client to use for LLM requests.
func SetDefaultOpenaiClient(client OpenaiClient) {
	defaultOpenaiClient.Store(&client)
}

func GetDefaultOpenaiClient() optional.Optional[OpenaiClient] {
	return optional.FromPointer(defaultOpenaiClient.Load())
}

func ClearOpenaiSettings() {
	defaultOpenaiKey.Store(nil)
	defaultOpenaiClient.Store(nil)
}
