package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/labpod/golabpod/packet"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "podcap.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Transport:  "mock",
		SerialAddr: "/dev/ttyACM0",
		Baud:       packet.DefaultBaud,
		TimeoutMS:  3000,
		Map:        "CH1",
		Format:     "csv"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `podcap runs one-shot acquisitions against a LabPod pocket instrument
from the command line.  Connection and capture setup live in podcap.yml,
the operation and its shape are given as arguments.

Usage:
	podcap <command> [args]

Commands:
	capture <channels> <samples> <timegap_us>
	voltage <input>
	monitor <input> <interval> <duration>
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `podcap is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

Config fields:
- Transport     how to reach the pod: "serial", "usb" or "mock"
- SerialAddr    serial device path when Transport is serial
- Baud          serial line rate, 1000000 for the pod's CDC-ACM port
- TimeoutMS     bound on each transport read in milliseconds
- Calibration   optional yaml file overriding the factory calibration
- Map           input bound to capture slot one, CH1 if empty
- Range         if nonzero, pick the smallest range covering this many volts
- TriggerSource if nonempty, wait for a rising crossing on this input
- TriggerLevel  the crossing level in volts
- Format        waveform encoding: "csv", "fits" or "json"
- Output        output path; empty for a timestamped name, "-" for stdout

Examples:
	podcap capture 2 1000 2        two channels, 1000 samples, 2 µs apart
	podcap voltage CAP             one calibrated reading of the CAP pin
	podcap monitor CH1 1s 10m      poll CH1 every second for ten minutes

Intervals and durations take Go syntax: 500ms, 2s, 10m, 1h30m.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("podcap version %v\n", Version)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "capture":
		doCapture(args[2:])
		return
	case "voltage":
		doVoltage(args[2:])
		return
	case "monitor":
		doMonitor(args[2:])
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
