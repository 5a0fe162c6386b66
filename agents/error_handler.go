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
	"fmt"
	"log/slog"
	"strings"
)

// ErrorStrategy selects how an ErrorHandler reacts to a failure.
type ErrorStrategy uint8

const (
	// FailFast returns the error to the caller.
	FailFast ErrorStrategy = iota
	// LogAndContinue logs the error and converts it into a handled result.
	LogAndContinue
	// RetryOnce re-runs the failing block for retryable errors, then applies
	// the fallback strategy.
	RetryOnce
	// GracefulDegradation converts the error into a user-facing message.
	GracefulDegradation
)

var errorStrategyNames = map[ErrorStrategy]string{
	FailFast:            "fail-fast",
	LogAndContinue:      "log-and-continue",
	RetryOnce:           "retry-once",
	GracefulDegradation: "graceful-degradation",
}

func (s ErrorStrategy) String() string {
	if name, ok := errorStrategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ErrorStrategy(%d)", s)
}

// ParseErrorStrategy parses names such as "fail-fast" or "graceful_degradation".
func ParseErrorStrategy(name string) (ErrorStrategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	if normalized == "" {
		return FailFast, nil
	}
	for s, n := range errorStrategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return FailFast, UserErrorf("unknown error strategy %q", name)
}

type errorOutcome uint8

const (
	outcomeRaise errorOutcome = iota
	outcomeStop
	outcomeContinue
	outcomeDegrade
)

// Outcome per kind, for the strategies that decide without retrying.
var errorOutcomes = map[ErrorKind]map[ErrorStrategy]errorOutcome{
	ErrorKindTurnLimitExceeded: {FailFast: outcomeRaise, LogAndContinue: outcomeStop, GracefulDegradation: outcomeDegrade},
	ErrorKindExecutionStopped:  {FailFast: outcomeRaise, LogAndContinue: outcomeStop, GracefulDegradation: outcomeDegrade},
	ErrorKindResponseParsing:   {FailFast: outcomeRaise, LogAndContinue: outcomeContinue, GracefulDegradation: outcomeDegrade},
	ErrorKindTimeout:           {FailFast: outcomeRaise, LogAndContinue: outcomeContinue, GracefulDegradation: outcomeDegrade},
	ErrorKindTransport:         {FailFast: outcomeRaise, LogAndContinue: outcomeContinue, GracefulDegradation: outcomeDegrade},
	ErrorKindPolicyTripwire:    {FailFast: outcomeRaise, LogAndContinue: outcomeRaise, GracefulDegradation: outcomeDegrade},
	ErrorKindHandoffRejected:   {FailFast: outcomeRaise, LogAndContinue: outcomeContinue, GracefulDegradation: outcomeDegrade},
	ErrorKindToolExecution:     {FailFast: outcomeContinue, LogAndContinue: outcomeContinue, GracefulDegradation: outcomeDegrade},
	ErrorKindUser:              {FailFast: outcomeRaise, LogAndContinue: outcomeRaise, GracefulDegradation: outcomeDegrade},
	ErrorKindUnclassified:      {FailFast: outcomeRaise, LogAndContinue: outcomeRaise, GracefulDegradation: outcomeDegrade},
}

var degradedMessages = map[ErrorKind]string{
	ErrorKindTurnLimitExceeded: "I wasn't able to finish this request within the allowed number of steps.",
	ErrorKindExecutionStopped:  "The request was stopped before it could be completed.",
	ErrorKindResponseParsing:   "I received a response I couldn't interpret. Please try again.",
	ErrorKindTimeout:           "The request timed out. Please try again later.",
	ErrorKindTransport:         "The service is temporarily unavailable. Please try again later.",
	ErrorKindPolicyTripwire:    "I can't help with that request.",
	ErrorKindHandoffRejected:   "I couldn't route your request to the right specialist.",
	ErrorKindToolExecution:     "One of the tools failed while handling your request.",
	ErrorKindUser:              "Something went wrong while handling your request.",
	ErrorKindUnclassified:      "Something went wrong while handling your request.",
}

// DegradedMessage returns the user-facing message used by GracefulDegradation.
func DegradedMessage(kind ErrorKind) string {
	if msg, ok := degradedMessages[kind]; ok {
		return msg
	}
	return degradedMessages[ErrorKindUnclassified]
}

// HandledError is the result of an error the handler did not return.
type HandledError struct {
	Handled  bool
	Kind     ErrorKind
	Strategy ErrorStrategy

	// Human-readable description: the degraded message for
	// GracefulDegradation, otherwise the error text.
	Message string

	Err error

	// Whether the caller may keep going after the failure.
	Continue bool

	// Whether Message is a user-facing replacement for the normal output.
	Degraded bool

	// Number of times the block ran, for Wrap.
	Attempts int
}

// ErrorHandler applies an ErrorStrategy to failures, dispatching on their
// ErrorKind. The zero value is a fail-fast handler.
type ErrorHandler struct {
	Strategy ErrorStrategy

	// Maximum re-runs under RetryOnce. Defaults to 1.
	MaxRetries int

	// Strategy applied when RetryOnce gives up. Defaults to FailFast.
	RetryFallback ErrorStrategy

	Logger *slog.Logger

	// Optional override of ErrorKind.Retryable.
	ShouldRetry func(error) bool
}

// Handle decides the fate of err. It returns either a HandledError or an
// error to propagate, never both.
func (h *ErrorHandler) Handle(ctx context.Context, err error) (*HandledError, error) {
	return h.handle(ctx, err, h.effectiveStrategy(), 1)
}

// Wrap runs block, applying the strategy to its failure. Under RetryOnce the
// block is re-run for retryable errors, unless ctx is done.
func (h *ErrorHandler) Wrap(ctx context.Context, block func(context.Context) error) (*HandledError, error) {
	attempts := 1
	err := block(ctx)
	if err == nil {
		return nil, nil
	}

	strategy := h.Strategy
	if strategy == RetryOnce {
		for retry := 0; retry < h.maxRetries() && err != nil && h.retryable(err) && ctx.Err() == nil; retry++ {
			h.logger().Warn("Retrying after error",
				slog.String("kind", string(ClassifyError(err))),
				slog.Int("attempt", attempts+1),
				slog.String("error", err.Error()))
			attempts++
			err = block(ctx)
		}
		if err == nil {
			return nil, nil
		}
		strategy = h.fallback()
	}
	return h.handle(ctx, err, strategy, attempts)
}

// Retryable reports whether err would be retried under RetryOnce.
func (h *ErrorHandler) Retryable(err error) bool {
	return h.retryable(err)
}

func (h *ErrorHandler) handle(_ context.Context, err error, strategy ErrorStrategy, attempts int) (*HandledError, error) {
	if err == nil {
		return nil, nil
	}

	kind := ClassifyError(err)
	outcomes, ok := errorOutcomes[kind]
	if !ok {
		outcomes = errorOutcomes[ErrorKindUnclassified]
	}

	result := &HandledError{
		Handled:  true,
		Kind:     kind,
		Strategy: strategy,
		Message:  err.Error(),
		Err:      err,
		Attempts: attempts,
	}

	switch outcomes[strategy] {
	case outcomeStop:
		h.logger().Warn("Error handled, stopping",
			slog.String("kind", string(kind)),
			slog.String("strategy", strategy.String()),
			slog.String("error", err.Error()))
		return result, nil
	case outcomeContinue:
		h.logger().Warn("Error handled, continuing",
			slog.String("kind", string(kind)),
			slog.String("strategy", strategy.String()),
			slog.String("error", err.Error()))
		result.Continue = true
		return result, nil
	case outcomeDegrade:
		h.logger().Warn("Error handled with degraded output",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		result.Degraded = true
		result.Message = DegradedMessage(kind)
		return result, nil
	default:
		if strategy != FailFast {
			h.logger().Error("Unrecoverable error",
				slog.String("kind", string(kind)),
				slog.String("strategy", strategy.String()),
				slog.String("error", err.Error()))
		}
		return nil, err
	}
}

// effectiveStrategy resolves RetryOnce, which needs a block to re-run, to
// its fallback.
func (h *ErrorHandler) effectiveStrategy() ErrorStrategy {
	if h.Strategy == RetryOnce {
		return h.fallback()
	}
	return h.Strategy
}

func (h *ErrorHandler) fallback() ErrorStrategy {
	if h.RetryFallback == RetryOnce {
		return FailFast
	}
	return h.RetryFallback
}

func (h *ErrorHandler) maxRetries() int {
	if h.MaxRetries <= 0 {
		return 1
	}
	return h.MaxRetries
}

func (h *ErrorHandler) retryable(err error) bool {
	if h.ShouldRetry != nil {
		return h.ShouldRetry(err)
	}
	return ClassifyError(err).Retryable()
}

func (h *ErrorHandler) logger() *slog.Logger {
	return loggerOrNop(h.Logger)
}
