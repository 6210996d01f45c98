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

//go:build unix

package rawusb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/creachadair/mds/mapset"
	"github.com/padwerk/apcdiag/apcmini"
)

// A Device describes one USB device discovered during a scan.
type Device struct {
	Node         string // device node path (/dev/bus/usb/BBB/DDD)
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
}

// IsAPCMini reports whether the device identifiers match an APC Mini of
// either hardware revision.
func (d Device) IsAPCMini() bool { return apcmini.MatchesUSB(d.VendorID, d.ProductID) }

func (d Device) String() string {
	return fmt.Sprintf("%s %04x:%04x %s %s", d.Node, d.VendorID, d.ProductID, d.Manufacturer, d.Product)
}

// A Scanner enumerates USB devices through the sysfs device tree. The zero
// value scans the standard locations.
type Scanner struct {
	// SysfsRoot is the root of the USB sysfs tree.
	// If empty, /sys/bus/usb/devices is used.
	SysfsRoot string

	// DevfsRoot is the root of the USB device node tree.
	// If empty, /dev/bus/usb is used.
	DevfsRoot string
}

func (s Scanner) sysfs() string {
	if s.SysfsRoot != "" {
		return s.SysfsRoot
	}
	return "/sys/bus/usb/devices"
}

func (s Scanner) devfs() string {
	if s.DevfsRoot != "" {
		return s.DevfsRoot
	}
	return "/dev/bus/usb"
}

// Scan enumerates the USB devices visible in sysfs, in node order. Entries
// that cannot be read completely are skipped; an error is reported only if
// the device tree itself is unreadable.
func (s Scanner) Scan() ([]Device, error) {
	entries, err := os.ReadDir(s.sysfs())
	if err != nil {
		return nil, fmt.Errorf("scan usb devices: %w", err)
	}

	var devs []Device
	seen := mapset.New[string]()
	for _, e := range entries {
		name := e.Name()
		// Device entries look like "1-1" or "1-1.2". Root hubs ("usb1") and
		// interface entries ("1-1:1.0") are not devices.
		if strings.HasPrefix(name, "usb") || strings.ContainsRune(name, ':') {
			continue
		}
		dir := filepath.Join(s.sysfs(), name)
		vendor, err := readHex16(filepath.Join(dir, "idVendor"))
		if err != nil {
			continue
		}
		product, err := readHex16(filepath.Join(dir, "idProduct"))
		if err != nil {
			continue
		}
		bus, err := readUint(filepath.Join(dir, "busnum"))
		if err != nil {
			continue
		}
		dev, err := readUint(filepath.Join(dir, "devnum"))
		if err != nil {
			continue
		}
		node := filepath.Join(s.devfs(), fmt.Sprintf("%03d", bus), fmt.Sprintf("%03d", dev))
		if seen.Has(node) {
			continue
		}
		seen.Add(node)
		devs = append(devs, Device{
			Node:         node,
			VendorID:     vendor,
			ProductID:    product,
			Manufacturer: readString(filepath.Join(dir, "manufacturer")),
			Product:      readString(filepath.Join(dir, "product")),
		})
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i].Node < devs[j].Node })
	return devs, nil
}

// FindAPCMini scans for the first attached APC Mini and returns its
// description. It reports os.ErrNotExist if no matching device is attached.
func (s Scanner) FindAPCMini() (Device, error) {
	devs, err := s.Scan()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devs {
		if d.IsAPCMini() {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("apc mini: %w", os.ErrNotExist)
}

// FindAPCMini scans the default sysfs tree for the first attached APC Mini.
func FindAPCMini() (Device, error) { return Scanner{}.FindAPCMini() }

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readHex16(path string) (uint16, error) {
	v, err := strconv.ParseUint(readString(path), 16, 16)
	return uint16(v), err
}

func readUint(path string) (int, error) {
	v, err := strconv.Atoi(readString(path))
	return v, err
}
