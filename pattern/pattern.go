// Copyright 2025 The apcdiag authors. All Rights Reserved.
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

// Package pattern generates pad LED frames for the visual diagnostics and
// the batch-write benchmark.
package pattern

import (
	"fmt"
	"sort"

	"github.com/padwerk/apcdiag/apcmini"
	"github.com/padwerk/apcdiag/device"
)

// A Func produces the frame for a given animation step. Step 0 is the first
// frame; generators must accept any non-negative step.
type Func func(step int) device.Frame

// solidColors is the palette cycled by the animated generators.
var solidColors = []apcmini.Color{
	apcmini.ColorGreen, apcmini.ColorRed, apcmini.ColorYellow,
}

// Solid fills the whole matrix with one color from the palette, advancing
// with each step.
func Solid(step int) device.Frame {
	var f device.Frame
	c := solidColors[step%len(solidColors)]
	for i := range f {
		f[i] = c
	}
	return f
}

// Checker alternates two colors in a checkerboard that inverts each step.
func Checker(step int) device.Frame {
	var f device.Frame
	for y := range apcmini.PadRows {
		for x := range apcmini.PadCols {
			if (x+y+step)%2 == 0 {
				f.Set(x, y, apcmini.ColorGreen)
			} else {
				f.Set(x, y, apcmini.ColorRed)
			}
		}
	}
	return f
}

// Rows paints each row a palette color, scrolling upward with each step.
func Rows(step int) device.Frame {
	var f device.Frame
	for y := range apcmini.PadRows {
		c := solidColors[(y+step)%len(solidColors)]
		for x := range apcmini.PadCols {
			f.Set(x, y, c)
		}
	}
	return f
}

// Chase lights a single pad walking the matrix in note order.
func Chase(step int) device.Frame {
	var f device.Frame
	f[step%apcmini.PadCount] = apcmini.ColorYellow
	return f
}

// Rain drops a green pixel down each column, with each column offset so the
// drops fall staggered rather than as a solid row.
func Rain(step int) device.Frame {
	var f device.Frame
	for x := range apcmini.PadCols {
		y := apcmini.PadRows - 1 - (step+x)%apcmini.PadRows
		f.Set(x, y, apcmini.ColorGreen)
	}
	return f
}

// Wipe sweeps a palette color across the matrix one column per step, filling
// left to right and then restarting with the next color.
func Wipe(step int) device.Frame {
	var f device.Frame
	fill := step%apcmini.PadCols + 1
	c := solidColors[(step/apcmini.PadCols)%len(solidColors)]
	for y := range apcmini.PadRows {
		for x := range fill {
			f.Set(x, y, c)
		}
	}
	return f
}

// registry maps CLI names to generators.
var registry = map[string]Func{
	"solid":   Solid,
	"checker": Checker,
	"rows":    Rows,
	"chase":   Chase,
	"rain":    Rain,
	"wipe":    Wipe,
}

// Names lists the available pattern names in order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup finds the generator registered under name.
func Lookup(name string) (Func, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q (have %v)", name, Names())
	}
	return f, nil
}
