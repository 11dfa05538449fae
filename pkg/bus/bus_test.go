// Copyright 2026 chat-platform authors
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

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmit_SubscriptionOrder(t *testing.T) {
	b := New(nil)
	var got []int
	b.On("ev", func(any) { got = append(got, 1) })
	b.On("ev", func(any) { got = append(got, 2) })
	b.On("ev", func(any) { got = append(got, 3) })

	b.Emit("ev", nil)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestEmit_PayloadDelivered(t *testing.T) {
	b := New(nil)
	var got string
	b.On("ev", func(p any) { got, _ = p.(string) })

	b.Emit("ev", "hello")
	assert.Equal(t, "hello", got)
}

func TestEmit_NoSubscribers(t *testing.T) {
	b := New(nil)
	assert.NotPanics(t, func() { b.Emit("nobody", 42) })
}

func TestEmit_PanicDoesNotStopDispatch(t *testing.T) {
	b := New(nil)
	var after bool
	b.On("ev", func(any) { panic("boom") })
	b.On("ev", func(any) { after = true })

	b.Emit("ev", nil)
	assert.True(t, after)
}

func TestOn_NilHandlerIgnored(t *testing.T) {
	b := New(nil)
	b.On("ev", nil)
	assert.NotPanics(t, func() { b.Emit("ev", nil) })
}
