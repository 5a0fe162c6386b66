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

package computer

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/agentflow/types/message"
)

// A Computer interface abstracts the operations needed to control a computer or browser.
type Computer interface {
	Environment(context.Context) (Environment, error)
	Dimensions(context.Context) (Dimensions, error)
	Screenshot(context.Context) (string, error)
	Click(ctx context.Context, x, y int64, button Button) error
	DoubleClick(ctx context.Context, x, y int64) error
	Scroll(ctx context.Context, x, y int64, scrollX, scrollY int64) error
	Type(ctx context.Context, text string) error
	Wait(context.Context) error
	Move(ctx context.Context, x, y int64) error
	Keypress(ctx context.Context, keys []string) error
	Drag(ctx context.Context, path []Position) error
}

type Dimensions struct {
	Width  int64
	Height int64
}

type Position struct {
	X int64
	Y int64
}

type Environment string

const (
	EnvironmentWindows Environment = "windows"
	EnvironmentMac     Environment = "mac"
	EnvironmentLinux   Environment = "linux"
	EnvironmentUbuntu  Environment = "ubuntu"
	EnvironmentBrowser Environment = "browser"
)

type Button string

const (
	ButtonLeft    Button = "left"
	ButtonRight   Button = "right"
	ButtonWheel   Button = "wheel"
	ButtonBack    Button = "back"
	ButtonForward Button = "forward"
)

// UnknownActionError is returned by Perform for an action type it cannot map.
type UnknownActionError struct {
	Type string
}

func (e UnknownActionError) Error() string {
	return fmt.Sprintf("unknown computer action %q", e.Type)
}

// Perform executes a single action on the computer and then captures a
// screenshot, which is returned base64-encoded.
func Perform(ctx context.Context, c Computer, action message.Action) (string, error) {
	var err error
	switch action.Type {
	case "click":
		button := Button(action.Button)
		if button == "" {
			button = ButtonLeft
		}
		err = c.Click(ctx, action.X, action.Y, button)
	case "double_click":
		err = c.DoubleClick(ctx, action.X, action.Y)
	case "drag":
		path := make([]Position, len(action.Path))
		for i, p := range action.Path {
			path[i] = Position{X: p.X, Y: p.Y}
		}
		err = c.Drag(ctx, path)
	case "keypress":
		err = c.Keypress(ctx, action.Keys)
	case "move":
		err = c.Move(ctx, action.X, action.Y)
	case "screenshot":
		// The screenshot below is all that is needed.
	case "scroll":
		err = c.Scroll(ctx, action.X, action.Y, action.ScrollX, action.ScrollY)
	case "type":
		err = c.Type(ctx, action.Text)
	case "wait":
		err = c.Wait(ctx)
	default:
		return "", UnknownActionError{Type: action.Type}
	}
	if err != nil {
		return "", fmt.Errorf("computer action %q failed: %w", action.Type, err)
	}
	return c.Screenshot(ctx)
}
