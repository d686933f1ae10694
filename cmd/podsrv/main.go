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
	ConfigFileName = "podsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:       ":8000",
		Transport:  "mock",
		SerialAddr: "/dev/ttyACM0",
		Baud:       packet.DefaultBaud,
		TimeoutMS:  3000,
		Endpoint:   "/pod"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `podsrv talks to a LabPod pocket instrument and exposes its oscilloscope
over HTTP.  This enables a server-client architecture, and the clients can
leverage the excellent HTTP libraries for any programming language.

Usage:
	podsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `podsrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

Without a configuration the server runs against a simulated pod, which is
useful for client development and for demos.

Config fields:
- Addr        address to listen at, e.g. ":8000"
- Transport   how to reach the pod: "serial", "usb" or "mock"
- SerialAddr  serial device path when Transport is serial, e.g. /dev/ttyACM0
- Baud        serial line rate, 1000000 for the pod's CDC-ACM port
- TimeoutMS   bound on each transport read in milliseconds
- Calibration optional yaml file overriding the factory calibration
- Endpoint    URL stem the pod routes are served under, e.g. "/pod"

The pod's analog inputs, by front-panel label:
- CH1, CH2   programmable-gain inputs, up to ±16.5 V
- CH3, MIC   fixed ±3.3 V inputs (MIC is wired to the microphone jack)
- CAP, SEN   capacitance and resistive-sensor pins, 0 to 3.3 V
- AN8        bare auxiliary pin, 0 to 3.3 V

Capture slot one defaults to CH1 and may be remapped to any input with
POST /channel-one-map.  Slots two through four are fixed to CH2, CH3, MIC.`
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
	fmt.Printf("podsrv version %v\n", Version)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
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
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
