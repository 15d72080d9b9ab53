// Copyright 2025 The CoorAgent Authors
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

package registry

import (
	"fmt"
	"testing"
)

type testItem struct {
	ID   string
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	registry := NewBaseRegistry[testItem]()

	tests := []struct {
		name    string
		item    testItem
		wantErr bool
	}{
		{
			name:    "register valid item",
			item:    testItem{ID: "test-1", Name: "Test Item 1"},
			wantErr: false,
		},
		{
			name:    "register item with empty name",
			item:    testItem{ID: "", Name: "Test Item"},
			wantErr: true,
		},
		{
			name:    "register duplicate item",
			item:    testItem{ID: "test-1", Name: "Test Item 2"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.item.ID, tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("BaseRegistry.Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_ListPreservesInsertionOrder(t *testing.T) {
	registry := NewBaseRegistry[testItem]()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("item-%d", i)
		if err := registry.Register(id, testItem{ID: id}); err != nil {
			t.Fatalf("Register(%s) failed: %v", id, err)
		}
	}

	names := registry.Names()
	for i, name := range names {
		want := fmt.Sprintf("item-%d", i)
		if name != want {
			t.Errorf("Names()[%d] = %s, want %s", i, name, want)
		}
	}
}

func TestBaseRegistry_Replace(t *testing.T) {
	registry := NewBaseRegistry[testItem]()
	if err := registry.Register("a", testItem{ID: "a", Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register("b", testItem{ID: "b"}); err != nil {
		t.Fatal(err)
	}

	if err := registry.Replace("a", testItem{ID: "a", Name: "second"}); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}
	if err := registry.Replace("missing", testItem{}); err == nil {
		t.Error("Replace() on unknown name should fail")
	}

	item, ok := registry.Get("a")
	if !ok || item.Name != "second" {
		t.Errorf("Get(a) = %+v, want Name=second", item)
	}
	// Replacing must not move the item in the listing order.
	if names := registry.Names(); names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	registry := NewBaseRegistry[testItem]()
	if err := registry.Register("a", testItem{ID: "a"}); err != nil {
		t.Fatal(err)
	}

	if err := registry.Remove("a"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, ok := registry.Get("a"); ok {
		t.Error("Get() after Remove() should miss")
	}
	if err := registry.Remove("a"); err == nil {
		t.Error("Remove() twice should fail")
	}
	if registry.Count() != 0 {
		t.Errorf("Count() = %d, want 0", registry.Count())
	}
}
