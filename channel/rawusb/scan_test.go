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

package rawusb_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/padwerk/apcdiag/channel/rawusb"
)

// writeDevice populates a fake sysfs device entry.
func writeDevice(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for attr, value := range attrs {
		if err := os.WriteFile(filepath.Join(dir, attr), []byte(value+"\n"), 0o644); err != nil {
			t.Fatalf("write %s/%s: %v", name, attr, err)
		}
	}
}

func TestScan(t *testing.T) {
	sysfs := t.TempDir()
	writeDevice(t, sysfs, "1-1", map[string]string{
		"idVendor":  "09e8",
		"idProduct": "004f",
		"busnum":    "1",
		"devnum":    "4",
		"product":   "APC mini mk2",
	})
	writeDevice(t, sysfs, "1-2", map[string]string{
		"idVendor":     "1d6b",
		"idProduct":    "0002",
		"busnum":       "1",
		"devnum":       "7",
		"manufacturer": "Linux Foundation",
	})
	// Interface and root hub entries must be skipped.
	writeDevice(t, sysfs, "1-1:1.0", map[string]string{"bInterfaceClass": "01"})
	writeDevice(t, sysfs, "usb1", map[string]string{"idVendor": "1d6b"})
	// Incomplete entries must be skipped, not fail the scan.
	writeDevice(t, sysfs, "1-3", map[string]string{"idVendor": "abcd"})

	s := rawusb.Scanner{SysfsRoot: sysfs, DevfsRoot: "/dev/bus/usb"}
	devs, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []rawusb.Device{
		{Node: "/dev/bus/usb/001/004", VendorID: 0x09E8, ProductID: 0x004F, Product: "APC mini mk2"},
		{Node: "/dev/bus/usb/001/007", VendorID: 0x1D6B, ProductID: 0x0002, Manufacturer: "Linux Foundation"},
	}
	if diff := cmp.Diff(want, devs); diff != "" {
		t.Errorf("Scan (-want, +got):\n%s", diff)
	}
}

func TestFindAPCMini(t *testing.T) {
	sysfs := t.TempDir()
	writeDevice(t, sysfs, "2-1", map[string]string{
		"idVendor": "09e8", "idProduct": "0028", "busnum": "2", "devnum": "3",
	})
	s := rawusb.Scanner{SysfsRoot: sysfs}
	dev, err := s.FindAPCMini()
	if err != nil {
		t.Fatalf("FindAPCMini: %v", err)
	}
	if !dev.IsAPCMini() {
		t.Errorf("found device %v is not an APC Mini", dev)
	}
	if dev.Node != "/dev/bus/usb/002/003" {
		t.Errorf("Node = %q, want /dev/bus/usb/002/003", dev.Node)
	}
}

func TestFindAPCMiniAbsent(t *testing.T) {
	s := rawusb.Scanner{SysfsRoot: t.TempDir()}
	if _, err := s.FindAPCMini(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("FindAPCMini on empty tree: got %v, want ErrNotExist", err)
	}
}
