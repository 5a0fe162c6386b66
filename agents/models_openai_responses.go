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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nlpodyssey/agentflow/modelsettings"
	"github.com/nlpodyssey/agentflow/openaitypes"
	"github.com/nlpodyssey/agentflow/usage"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"
	"github.com/openai/openai-go/v2/shared/constant"
)

// OpenAIResponsesModel implements Model with the OpenAI Responses API.
type OpenAIResponsesModel struct {
	Model  string
	Logger *slog.Logger
	client OpenaiClient
}

func NewOpenAIResponsesModel(model string, client OpenaiClient) OpenAIResponsesModel {
	return OpenAIResponsesModel{
		Model:  model,
		client: client,
	}
}

func (m OpenAIResponsesModel) GetResponse(ctx context.Context, params ModelResponseParams) (*ModelResponse, error) {
	logger := loggerOrNop(m.Logger)

	body, opts, err := m.prepareRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Debug("Calling LLM",
		slog.String("model", m.Model),
		slog.Int("inputItems", len(params.Input)),
		slog.Int("tools", len(body.Tools)))

	response, err := m.client.Responses.New(ctx, *body, opts...)
	if err != nil {
		logger.Error("Error getting response", slog.String("error", err.Error()))
		return nil, m.classifyError(ctx, err)
	}

	output, err := openaitypes.ItemsFromOutputs(response.Output)
	if err != nil {
		return nil, ModelBehaviorErrorf("failed to decode model output: %w", err)
	}

	logger.Debug("LLM responded",
		slog.String("responseID", response.ID),
		slog.Int("outputItems", len(output)))

	return &ModelResponse{
		Output:     output,
		Usage:      usageFromResponse(response),
		ResponseID: response.ID,
	}, nil
}

func (m OpenAIResponsesModel) classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return NewTimeoutError("model request timed out", err)
		}
		return err
	}
	return NewTransportError(err)
}

func usageFromResponse(response *responses.Response) *usage.Usage {
	u := response.Usage
	return &usage.Usage{
		Requests:          1,
		InputTokens:       uint64(u.InputTokens),
		CachedInputTokens: uint64(u.InputTokensDetails.CachedTokens),
		OutputTokens:      uint64(u.OutputTokens),
		ReasoningTokens:   uint64(u.OutputTokensDetails.ReasoningTokens),
		TotalTokens:       uint64(u.TotalTokens),
	}
}

func (m OpenAIResponsesModel) prepareRequest(
	ctx context.Context,
	params ModelResponseParams,
) (*responses.ResponseNewParams, []option.RequestOption, error) {
	modelSettings := params.ModelSettings

	input, err := openaitypes.InputParams(params.Input)
	if err != nil {
		return nil, nil, err
	}

	tools, err := ResponsesConverter().ConvertTools(ctx, params.Tools, params.Handoffs)
	if err != nil {
		return nil, nil, err
	}

	responseFormat, err := ResponsesConverter().GetResponseFormat(params.OutputType)
	if err != nil {
		return nil, nil, err
	}
	if v, ok := modelSettings.Verbosity.Get(); ok {
		responseFormat.Verbosity = responses.ResponseTextConfigVerbosity(v)
	}

	var parallelToolCalls param.Opt[bool]
	if v, ok := modelSettings.ParallelToolCalls.Get(); ok {
		if v && len(tools) > 0 {
			parallelToolCalls = param.NewOpt(true)
		} else if !v {
			parallelToolCalls = param.NewOpt(false)
		}
	}

	include := make([]responses.ResponseIncludable, 0, len(modelSettings.ResponseInclude))
	for _, v := range modelSettings.ResponseInclude {
		include = append(include, responses.ResponseIncludable(v))
	}
	slices.Sort(include)
	include = slices.Compact(include)

	body := &responses.ResponseNewParams{
		Model:             m.Model,
		Instructions:      optParam(params.SystemInstructions.Get()),
		Include:           include,
		Tools:             tools,
		Temperature:       optParam(modelSettings.Temperature.Get()),
		TopP:              optParam(modelSettings.TopP.Get()),
		MaxOutputTokens:   optParam(modelSettings.MaxTokens.Get()),
		Truncation:        responses.ResponseNewParamsTruncation(modelSettings.Truncation.ValueOrFallback("")),
		ToolChoice:        ResponsesConverter().ConvertToolChoice(modelSettings.ToolChoice),
		ParallelToolCalls: parallelToolCalls,
		Text:              responseFormat,
		Store:             optParam(modelSettings.Store.Get()),
		Metadata:          modelSettings.Metadata,
	}
	if params.PreviousResponseID != "" {
		body.PreviousResponseID = param.NewOpt(params.PreviousResponseID)
	}
	if v, ok := modelSettings.ReasoningEffort.Get(); ok {
		body.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffort(v)}
	}

	// Items are sent in their wire shape, bypassing the typed input union.
	opts := []option.RequestOption{option.WithJSONSet("input", input)}
	for k, v := range modelSettings.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	return body, opts, nil
}

func optParam[T comparable](v T, ok bool) param.Opt[T] {
	if !ok {
		return param.Opt[T]{}
	}
	return param.NewOpt(v)
}

type responsesConverter struct{}

func ResponsesConverter() responsesConverter { return responsesConverter{} }

func (responsesConverter) ConvertToolChoice(toolChoice modelsettings.ToolChoice) responses.ResponseNewParamsToolChoiceUnion {
	switch toolChoice := toolChoice.(type) {
	case nil:
		return responses.ResponseNewParamsToolChoiceUnion{}
	case modelsettings.ToolChoiceString:
		switch toolChoice {
		case modelsettings.ToolChoiceAuto, modelsettings.ToolChoiceRequired, modelsettings.ToolChoiceNone:
			return responses.ResponseNewParamsToolChoiceUnion{
				OfToolChoiceMode: param.NewOpt(responses.ToolChoiceOptions(toolChoice)),
			}
		case ComputerToolName:
			return responses.ResponseNewParamsToolChoiceUnion{
				OfHostedTool: &responses.ToolChoiceTypesParam{
					Type: responses.ToolChoiceTypesType(toolChoice),
				},
			}
		default:
			return responses.ResponseNewParamsToolChoiceUnion{
				OfFunctionTool: &responses.ToolChoiceFunctionParam{
					Name: toolChoice.String(),
					Type: constant.ValueOf[constant.Function](),
				},
			}
		}
	case modelsettings.ToolChoiceFunction:
		return responses.ResponseNewParamsToolChoiceUnion{
			OfFunctionTool: &responses.ToolChoiceFunctionParam{
				Name: toolChoice.Name,
				Type: constant.ValueOf[constant.Function](),
			},
		}
	default:
		panic(fmt.Errorf("unexpected ToolChoice type %T", toolChoice))
	}
}

func (responsesConverter) GetResponseFormat(outputType OutputTypeInterface) (responses.ResponseTextConfigParam, error) {
	if outputType == nil || outputType.IsPlainText() {
		return responses.ResponseTextConfigParam{}, nil
	}
	schema, err := outputType.JSONSchema()
	if err != nil {
		return responses.ResponseTextConfigParam{}, err
	}
	return responses.ResponseTextConfigParam{
		Format: responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:   "final_output",
				Schema: schema,
				Strict: param.NewOpt(outputType.IsStrictJSONSchema()),
				Type:   constant.ValueOf[constant.JSONSchema](),
			},
		},
	}, nil
}

// ConvertTools renders tools and handoffs as Responses API tool params.
// Handoffs are exposed to the model as function tools.
func (conv responsesConverter) ConvertTools(ctx context.Context, ts []Tool, handoffs []Handoff) ([]responses.ToolUnionParam, error) {
	computerTools := 0
	for _, tool := range ts {
		if _, ok := tool.(ComputerTool); ok {
			computerTools++
		}
	}
	if computerTools > 1 {
		return nil, UserErrorf("you can only provide one computer tool, got %d", computerTools)
	}

	converted := make([]responses.ToolUnionParam, 0, len(ts)+len(handoffs))
	for _, tool := range ts {
		t, err := conv.convertTool(ctx, tool)
		if err != nil {
			return nil, err
		}
		converted = append(converted, t)
	}
	for _, handoff := range handoffs {
		converted = append(converted, openaitypes.FunctionToolParam(
			handoff.ToolName,
			handoff.ToolDescription,
			handoff.InputJSONSchema,
			handoff.StrictJSONSchema.ValueOrFallback(true),
		))
	}
	return converted, nil
}

func (responsesConverter) convertTool(ctx context.Context, tool Tool) (responses.ToolUnionParam, error) {
	switch t := tool.(type) {
	case FunctionTool:
		return openaitypes.FunctionToolParam(
			t.Name,
			t.Description,
			t.ParamsJSONSchema,
			t.StrictJSONSchema.ValueOrFallback(true),
		), nil
	case ComputerTool:
		environment, err := t.Computer.Environment(ctx)
		if err != nil {
			return responses.ToolUnionParam{}, err
		}
		dimensions, err := t.Computer.Dimensions(ctx)
		if err != nil {
			return responses.ToolUnionParam{}, err
		}
		return openaitypes.ComputerToolParam(dimensions.Width, dimensions.Height, string(environment)), nil
	case LocalShellTool:
		return openaitypes.LocalShellToolParam(), nil
	default:
		return responses.ToolUnionParam{}, UserErrorf("unknown tool type: %T", tool)
	}
}
