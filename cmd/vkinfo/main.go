// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/vkframe/device"
)

var (
	validation = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	indent     = flag.Bool("i", false, "Indent the output")
)

func main() {
	flag.Parse()

	instance, err := device.NewInstance(device.DefaultApplicationInfo, nil, device.InstanceConfiguration{
		Validation: *validation,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer instance.Destroy()

	enc := json.NewEncoder(os.Stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(instance.PhysicalDevicesInfo()); err != nil {
		log.Fatal(err)
	}
}
